package model

import (
	"sync"
	"time"
)

// FailureKind classifies a per-item failure recorded during a crawl run.
//
// No failure kind is fatal to a run; every kind is logged and the crawl
// continues with the next item.
type FailureKind int

const (
	// FailureFetch indicates a network, timeout or HTTP status failure.
	FailureFetch FailureKind = iota

	// FailureParse indicates HTML that could not be parsed at all.
	// The page is then treated as having no references.
	FailureParse

	// FailureWrite indicates an I/O error while saving an image.
	FailureWrite
)

// String returns a human-readable representation of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureFetch:
		return "fetch"
	case FailureParse:
		return "parse"
	case FailureWrite:
		return "write"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so that failure kinds
// appear as words in JSON reports.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FailureKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fetch":
		*k = FailureFetch
	case "parse":
		*k = FailureParse
	case "write":
		*k = FailureWrite
	default:
		*k = FailureKind(-1)
	}
	return nil
}

// Failure records one item that was skipped because of an error.
type Failure struct {
	// Kind classifies the failure.
	Kind FailureKind `json:"kind"`

	// URL is the page or image URL that failed.
	URL string `json:"url"`

	// Message is the error text.
	Message string `json:"message"`
}

// Download records one image saved to the output directory.
type Download struct {
	// URL is the absolute image URL.
	URL string `json:"url"`

	// PageURL is the page on which the image reference was found.
	PageURL string `json:"page_url,omitempty"`

	// Path is the file the image was written to.
	Path string `json:"path"`

	// Size is the number of bytes written.
	Size int64 `json:"size"`

	// ContentType is the Content-Type reported by the server.
	ContentType string `json:"content_type,omitempty"`

	// SHA256 is the hex-encoded SHA-256 digest of the written bytes.
	SHA256 string `json:"sha256"`

	// Timestamp is when the file was written.
	Timestamp time.Time `json:"timestamp"`
}

// CrawlReport summarizes one crawl run.
// All mutating methods are safe for concurrent use by crawl workers.
type CrawlReport struct {
	// SeedURL is the normalized start URL.
	SeedURL string `json:"seed_url"`

	// BaseDomain is the host every followed link had to match.
	BaseDomain string `json:"base_domain"`

	// OutputDir is the directory images were written to.
	OutputDir string `json:"output_dir"`

	// MaxDepth is the effective depth bound of the run.
	MaxDepth int `json:"max_depth"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run finished. Zero while running.
	FinishedAt time.Time `json:"finished_at"`

	// PagesVisited counts pages fetched successfully.
	PagesVisited int `json:"pages_visited"`

	// PagesFailed counts pages whose fetch failed.
	PagesFailed int `json:"pages_failed"`

	// ImagesSkipped counts image references ignored because the URL was
	// already downloaded in this run.
	ImagesSkipped int `json:"images_skipped"`

	// Downloads lists every image saved during the run.
	Downloads []Download `json:"downloads"`

	// Failures lists every item skipped because of an error.
	Failures []Failure `json:"failures"`

	// Cancelled is true when the run was interrupted before completion.
	Cancelled bool `json:"cancelled,omitempty"`

	mu sync.Mutex
}

// NewCrawlReport creates a report for a run starting now.
func NewCrawlReport(seedURL, baseDomain, outputDir string, maxDepth int) *CrawlReport {
	return &CrawlReport{
		SeedURL:    seedURL,
		BaseDomain: baseDomain,
		OutputDir:  outputDir,
		MaxDepth:   maxDepth,
		StartedAt:  time.Now(),
		Downloads:  make([]Download, 0),
		Failures:   make([]Failure, 0),
	}
}

// AddPage records a successfully fetched page.
func (r *CrawlReport) AddPage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PagesVisited++
}

// AddDownload records a saved image.
func (r *CrawlReport) AddDownload(d Download) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Downloads = append(r.Downloads, d)
}

// AddSkipped records an image reference that was already downloaded.
func (r *CrawlReport) AddSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ImagesSkipped++
}

// AddFailure records a failed item. Page fetch failures also increase
// PagesFailed.
func (r *CrawlReport) AddFailure(kind FailureKind, url string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Failures = append(r.Failures, Failure{Kind: kind, URL: url, Message: msg})
}

// AddPageFailure records a page whose fetch failed.
func (r *CrawlReport) AddPageFailure(url string, err error) {
	r.AddFailure(FailureFetch, url, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.PagesFailed++
}

// Finish stamps the finish time.
func (r *CrawlReport) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
}

// Duration returns the elapsed time of the run.
// For an unfinished run it is the time since StartedAt.
func (r *CrawlReport) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TotalBytes returns the number of bytes written across all downloads.
func (r *CrawlReport) TotalBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, d := range r.Downloads {
		total += d.Size
	}
	return total
}

// FailuresByKind returns the failures of the given kind.
func (r *CrawlReport) FailuresByKind(kind FailureKind) []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Failure, 0)
	for _, f := range r.Failures {
		if f.Kind == kind {
			result = append(result, f)
		}
	}
	return result
}
