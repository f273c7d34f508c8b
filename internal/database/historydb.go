package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/spider/internal/model"
)

// DBFileName is the name of the database file inside the database directory.
const DBFileName = "spider.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage for crawl runs and downloads.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw prevents creating new files; mode=rwc allows creation.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// Path returns the path of the database file.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- Runs store one crawl run each, with the full report as JSON
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed_url TEXT NOT NULL,
		base_domain TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		pages_visited INTEGER DEFAULT 0,
		pages_failed INTEGER DEFAULT 0,
		images_downloaded INTEGER DEFAULT 0,
		images_skipped INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		total_bytes INTEGER DEFAULT 0,
		cancelled INTEGER DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_base_domain ON runs(base_domain);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	-- Downloads store every image written during a run
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		page_url TEXT,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		content_type TEXT,
		sha256 TEXT NOT NULL,
		downloaded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_run ON downloads(run_id);
	CREATE INDEX IF NOT EXISTS idx_downloads_url ON downloads(url);
	CREATE INDEX IF NOT EXISTS idx_downloads_sha256 ON downloads(sha256);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord contains summary information about a stored run.
// It is used for displaying history without loading the full report.
type RunRecord struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// SeedURL is the start URL of the run.
	SeedURL string

	// BaseDomain is the host the run was restricted to.
	BaseDomain string

	// OutputDir is where the run wrote its images.
	OutputDir string

	// MaxDepth is the effective depth bound of the run.
	MaxDepth int

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	PagesVisited     int
	PagesFailed      int
	ImagesDownloaded int
	ImagesSkipped    int
	Failures         int
	TotalBytes       int64

	// Cancelled is true when the run was interrupted.
	Cancelled bool
}

// SaveRun stores a finished crawl report with all of its downloads in a
// single transaction and returns the ID of the new run.
func (hdb *HistoryDB) SaveRun(ctx context.Context, report *model.CrawlReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (seed_url, base_domain, output_dir, max_depth, started_at, finished_at,
		pages_visited, pages_failed, images_downloaded, images_skipped, failures, total_bytes,
		cancelled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.SeedURL,
		report.BaseDomain,
		report.OutputDir,
		report.MaxDepth,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.PagesVisited,
		report.PagesFailed,
		len(report.Downloads),
		report.ImagesSkipped,
		len(report.Failures),
		report.TotalBytes(),
		boolToInt(report.Cancelled),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO downloads (run_id, url, page_url, path, size, content_type, sha256, downloaded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare download insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range report.Downloads {
		if _, err := stmt.ExecContext(ctx,
			runID,
			d.URL,
			d.PageURL,
			d.Path,
			d.Size,
			d.ContentType,
			d.SHA256,
			formatTimestamp(d.Timestamp),
		); err != nil {
			return 0, fmt.Errorf("failed to insert download %s: %w", d.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns all runs. When domain is not empty only runs of that base
// domain are returned.
func (hdb *HistoryDB) ListRuns(ctx context.Context, domain string, limit int) ([]RunRecord, error) {
	query := `
	SELECT id, seed_url, base_domain, output_dir, max_depth, started_at, finished_at,
		pages_visited, pages_failed, images_downloaded, images_skipped, failures, total_bytes, cancelled
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if domain != "" {
		query += " AND base_domain = ?"
		args = append(args, domain)
	}

	query += " ORDER BY started_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *run)
	}

	return results, rows.Err()
}

// GetRun retrieves the summary of a run by its ID.
// It returns ErrRunNotFound when no such run exists.
func (hdb *HistoryDB) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := hdb.db.QueryRowContext(ctx, `
	SELECT id, seed_url, base_domain, output_dir, max_depth, started_at, finished_at,
		pages_visited, pages_failed, images_downloaded, images_skipped, failures, total_bytes, cancelled
	FROM runs
	WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRunReport retrieves the full report stored for a run.
// It returns ErrRunNotFound when no such run exists.
func (hdb *HistoryDB) GetRunReport(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// GetRunDownloads returns the downloads of a run in the order they were written.
func (hdb *HistoryDB) GetRunDownloads(ctx context.Context, runID int64) ([]model.Download, error) {
	return hdb.queryDownloads(ctx, `
	SELECT url, page_url, path, size, content_type, sha256, downloaded_at
	FROM downloads
	WHERE run_id = ?
	ORDER BY id
	`, runID)
}

// FindDownloadsBySHA256 returns every stored download with the given
// content digest, newest first. It lets a user find where an image was
// saved before.
func (hdb *HistoryDB) FindDownloadsBySHA256(ctx context.Context, digest string) ([]model.Download, error) {
	return hdb.queryDownloads(ctx, `
	SELECT url, page_url, path, size, content_type, sha256, downloaded_at
	FROM downloads
	WHERE sha256 = ?
	ORDER BY id DESC
	`, digest)
}

func (hdb *HistoryDB) queryDownloads(ctx context.Context, query string, args ...any) ([]model.Download, error) {
	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	results := make([]model.Download, 0)
	for rows.Next() {
		var d model.Download
		var pageURL, contentType sql.NullString
		var timestamp string

		if err := rows.Scan(&d.URL, &pageURL, &d.Path, &d.Size, &contentType, &d.SHA256, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		d.PageURL = pageURL.String
		d.ContentType = contentType.String
		d.Timestamp = parseTimestamp(timestamp)
		results = append(results, d)
	}

	return results, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var startedAt string
	var finishedAt sql.NullString

	err := row.Scan(
		&run.ID,
		&run.SeedURL,
		&run.BaseDomain,
		&run.OutputDir,
		&run.MaxDepth,
		&startedAt,
		&finishedAt,
		&run.PagesVisited,
		&run.PagesFailed,
		&run.ImagesDownloaded,
		&run.ImagesSkipped,
		&run.Failures,
		&run.TotalBytes,
		&run.Cancelled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimestamp(finishedAt.String)
	}
	return &run, nil
}

// timestampLayout has a fixed width so that lexical order of stored
// timestamps equals chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp stores times in UTC. The zero time is stored as "".
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // Also accepts timestampLayout
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
