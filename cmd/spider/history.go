package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/spider/internal/config"
	"github.com/nao1215/spider/internal/database"
	"github.com/nao1215/spider/internal/report"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// It shows runs recorded in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show previous crawl runs",
		Long: `History lists the crawl runs recorded in the history database.

Without arguments the most recent runs are listed. With a run ID the
files downloaded by that run are shown, or the full report of the run
with --report.

Examples:
  # List the 20 most recent runs
  spider history

  # List runs of one host only
  spider history --domain example.com

  # Show the downloads of run 7
  spider history 7

  # Print the stored report of run 7 as Markdown
  spider history 7 --report -m

  # Find where an image with this SHA-256 was saved before
  spider history --sha256 9f86d081884c7d65...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("domain", "",
		"Only list runs of this host")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().String("sha256", "",
		"List downloads with this SHA-256 digest")
	cmd.Flags().Bool("report", false,
		"Print the stored report of the given run")
	cmd.Flags().BoolP("json", "j", false,
		"Print the report in JSON format (with --report)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the report in Markdown format (with --report)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	out := cmd.OutOrStdout()

	// Validate arguments before opening the database.
	var runID int64
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid run ID: %q", args[0])
		}
		runID = id
	}

	showReport, err := flags.GetBool("report")
	if err != nil {
		return err
	}
	if showReport && runID == 0 {
		return errors.New("--report requires a run ID")
	}

	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(dbDir, database.DBFileName)); os.IsNotExist(err) {
		fmt.Fprintln(out, "No runs recorded yet.")
		fmt.Fprintln(out, "\nUse 'spider <url>' to crawl a website.")
		return nil
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	digest, err := flags.GetString("sha256")
	if err != nil {
		return err
	}
	if digest != "" {
		return findDownloads(ctx, db, out, strings.ToLower(digest))
	}

	if runID != 0 {
		if showReport {
			format := report.FormatText
			switch {
			case jsonOutput:
				format = report.FormatJSON
			case markdownOutput:
				format = report.FormatMarkdown
			}
			return showRunReport(ctx, db, out, runID, format)
		}
		return showRunDownloads(ctx, db, out, runID)
	}

	domain, err := flags.GetString("domain")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	return listRuns(ctx, db, out, domain, limit)
}

// listRuns prints a table of recorded runs, newest first.
func listRuns(ctx context.Context, db *database.HistoryDB, out io.Writer, domain string, limit int) error {
	runs, err := db.ListRuns(ctx, domain, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		if domain != "" {
			fmt.Fprintf(out, "No runs recorded for %s\n", domain)
		} else {
			fmt.Fprintln(out, "No runs recorded yet.")
		}
		return nil
	}

	fmt.Fprintf(out, "Recorded runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-8s  %-6s  %-8s  %s\n", "ID", "Date", "Pages", "Images", "Failures", "Start URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 78))

	for _, run := range runs {
		marker := ""
		if run.Cancelled {
			marker = " (interrupted)"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-8d  %-6d  %-8d  %s%s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.PagesVisited,
			run.ImagesDownloaded,
			run.Failures,
			run.SeedURL,
			marker,
		)
	}
	fmt.Fprintln(out, "\nUse 'spider history <id>' to see the downloads of a run.")

	return nil
}

// showRunDownloads prints the files written by one run.
func showRunDownloads(ctx context.Context, db *database.HistoryDB, out io.Writer, runID int64) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	downloads, err := db.GetRunDownloads(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %d: %s\n", run.ID, run.SeedURL)
	fmt.Fprintf(out, "  Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "  Depth:    %d\n", run.MaxDepth)
	fmt.Fprintf(out, "  Output:   %s\n\n", run.OutputDir)

	if len(downloads) == 0 {
		fmt.Fprintln(out, "No images were downloaded in this run.")
		return nil
	}

	fmt.Fprintf(out, "Downloads (%d):\n\n", len(downloads))
	for _, d := range downloads {
		fmt.Fprintf(out, "  [+] %s  (%d bytes)\n", d.Path, d.Size)
		fmt.Fprintf(out, "      %s\n", d.URL)
	}

	return nil
}

// showRunReport prints the stored report of one run.
func showRunReport(ctx context.Context, db *database.HistoryDB, out io.Writer, runID int64, format report.Format) error {
	crawlReport, err := db.GetRunReport(ctx, runID)
	if err != nil {
		return err
	}

	_, err = report.NewWriter(out, format, getVersion()).Write(crawlReport)
	return err
}

// findDownloads prints every recorded download with the given digest.
func findDownloads(ctx context.Context, db *database.HistoryDB, out io.Writer, digest string) error {
	downloads, err := db.FindDownloadsBySHA256(ctx, digest)
	if err != nil {
		return err
	}

	if len(downloads) == 0 {
		fmt.Fprintf(out, "No downloads with SHA-256 %s\n", digest)
		return nil
	}

	fmt.Fprintf(out, "Downloads with SHA-256 %s (%d):\n\n", digest, len(downloads))
	for _, d := range downloads {
		fmt.Fprintf(out, "  [+] %s\n", d.Path)
		fmt.Fprintf(out, "      %s (%s)\n", d.URL, d.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
