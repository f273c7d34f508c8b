package crawler

import (
	"github.com/nao1215/spider/internal/model"
	"github.com/nao1215/spider/internal/sink"
)

// Session is the state of one crawl run.
// It is created by Spider.Crawl and shared by every worker of that run.
type Session struct {
	// Seed is the normalized start URL.
	Seed model.Target

	// BaseDomain is the host of the seed. Links to any other host are
	// never followed. It does not change during the run.
	BaseDomain string

	// MaxDepth is the deepest level that is fetched; the seed is level 0.
	MaxDepth int

	// Visited holds every page URL that was queued for fetching.
	Visited *model.URLSet

	// Downloaded holds the image URLs handled by the Download Sink.
	Downloaded *sink.DownloadedSet

	// Report collects the outcome of the run.
	Report *model.CrawlReport
}

// NewSession creates the state for a run starting at seed.
func NewSession(seed model.Target, outputDir string, maxDepth int) *Session {
	return &Session{
		Seed:       seed,
		BaseDomain: seed.Host,
		MaxDepth:   maxDepth,
		Visited:    model.NewURLSet(),
		Downloaded: sink.NewDownloadedSet(),
		Report:     model.NewCrawlReport(seed.URL, seed.Host, outputDir, maxDepth),
	}
}

// InDomain reports whether rawURL is an http(s) URL on the base domain.
func (s *Session) InDomain(rawURL string) bool {
	t, err := model.ParseTarget(rawURL)
	if err != nil {
		return false
	}
	return t.SameHost(s.BaseDomain)
}
