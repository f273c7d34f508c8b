package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/spider/internal/classify"
	"github.com/nao1215/spider/internal/fetch"
	"github.com/nao1215/spider/internal/model"
	"github.com/nao1215/spider/internal/sink"
)

const (
	// DefaultMaxDepth is the depth bound used when WithMaxDepth is not given.
	DefaultMaxDepth = 5

	// DefaultWorkers is the number of pages fetched concurrently by default.
	// One worker makes the crawl strictly sequential.
	DefaultWorkers = 1

	pageAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

// errRedirectVisited stops a page redirect whose target was already visited.
var errRedirectVisited = errors.New("redirect target already visited")

// Spider crawls one website and downloads the images it references.
type Spider struct {
	// fetcher retrieves pages and images.
	fetcher sink.Fetcher

	// maxDepth limits how deep to crawl from the starting URL.
	// 0 means only the starting page, 1 means one level of links, etc.
	maxDepth int

	// workers is the number of pages of one level fetched concurrently.
	workers int

	// logger receives per-item failures and debug traces.
	logger *slog.Logger

	// ignorePatterns are URL path patterns never followed.
	ignorePatterns []string

	// followPatterns, when set, restrict following to matching paths.
	followPatterns []string

	// onDownload is called after every saved image.
	onDownload func(model.Download)

	// onPage is called before every page fetch.
	onPage func(pageURL string, depth int)

	// sameDomainImages restricts image downloads to the base domain.
	sameDomainImages bool

	// sinkOptions configure the Download Sink of every run.
	sinkOptions []sink.Option
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
// Negative values are treated as 0.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = max(depth, 0)
	}
}

// WithWorkers sets how many pages of the same depth are fetched in parallel.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only links matching at least one pattern are followed.
// The seed page is always fetched.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithOnDownload sets a callback invoked for every saved image.
// The callback may be called from several goroutines at once.
func WithOnDownload(fn func(model.Download)) SpiderOption {
	return func(s *Spider) {
		s.onDownload = fn
	}
}

// WithOnPage sets a callback invoked before every page fetch.
// The callback may be called from several goroutines at once.
func WithOnPage(fn func(pageURL string, depth int)) SpiderOption {
	return func(s *Spider) {
		s.onPage = fn
	}
}

// WithSameDomainImages restricts image downloads to the base domain.
// By default images are saved from any host.
func WithSameDomainImages(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.sameDomainImages = enabled
	}
}

// WithSinkOptions sets options for the Download Sink.
func WithSinkOptions(opts ...sink.Option) SpiderOption {
	return func(s *Spider) {
		s.sinkOptions = opts
	}
}

// NewSpider creates a new Spider that retrieves resources with fetcher.
//
// A Spider holds no per-run state and can run several crawls one after
// another or concurrently.
func NewSpider(fetcher sink.Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:  fetcher,
		maxDepth: DefaultMaxDepth,
		workers:  DefaultWorkers,
		logger:   slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Crawl crawls from startURL and saves images into outputDir.
//
// The only errors returned are an invalid start URL and cancellation of
// ctx. On cancellation the partial report is returned together with the
// context error and has Cancelled set.
func (s *Spider) Crawl(ctx context.Context, startURL, outputDir string) (*model.CrawlReport, error) {
	seed, err := model.ParseTarget(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}

	session := NewSession(seed, outputDir, s.maxDepth)
	saver := sink.New(s.fetcher, outputDir, session.Downloaded, s.sinkOptions...)
	report := session.Report

	s.logger.Debug("starting crawl",
		"seed", seed.URL,
		"base_domain", session.BaseDomain,
		"max_depth", session.MaxDepth,
		"workers", s.workers,
	)

	session.Visited.Add(seed.URL)
	level := []string{seed.URL}

	for depth := 0; len(level) > 0; depth++ {
		if ctx.Err() != nil {
			break
		}

		links := s.crawlLevel(ctx, session, saver, level, depth)
		if depth >= session.MaxDepth {
			break
		}
		level = s.nextLevel(session, links)
	}

	report.Finish()

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		return report, err
	}

	s.logger.Debug("crawl complete",
		"pages", report.PagesVisited,
		"downloads", len(report.Downloads),
		"failures", len(report.Failures),
	)

	return report, nil
}

// crawlLevel processes every page of one depth level and returns the links
// found, grouped per page in level order.
func (s *Spider) crawlLevel(ctx context.Context, session *Session, saver *sink.Sink, level []string, depth int) [][]string {
	links := make([][]string, len(level))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, pageURL := range level {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			links[i] = s.crawlPage(ctx, session, saver, pageURL, depth)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	return links
}

// nextLevel selects the links to fetch at the next depth, in document
// order. Each selected link is marked visited here, before it is fetched.
func (s *Spider) nextLevel(session *Session, links [][]string) []string {
	next := make([]string, 0)
	for _, pageLinks := range links {
		for _, link := range pageLinks {
			if !session.InDomain(link) {
				continue
			}
			if !s.shouldFollow(link) {
				continue
			}
			if session.Visited.Add(link) {
				next = append(next, model.NormalizeURL(link))
			}
		}
	}
	return next
}

// crawlPage fetches one page, saves its images and returns its links.
// Failures end this branch only.
func (s *Spider) crawlPage(ctx context.Context, session *Session, saver *sink.Sink, pageURL string, depth int) []string {
	if s.onPage != nil {
		s.onPage(pageURL, depth)
	}
	s.logger.Debug("fetching page", "url", pageURL, "depth", depth)

	// Every redirect target is claimed in the visited set before it is
	// requested, so a page reached through a redirect is fetched once.
	var accepted string
	resp, err := s.fetcher.Fetch(ctx, pageURL,
		fetch.WithSameHostRedirects(session.BaseDomain),
		fetch.WithAccept(pageAccept),
		fetch.WithRedirectFilter(func(target *url.URL) error {
			if !session.Visited.Add(target.String()) {
				return errRedirectVisited
			}
			accepted = model.NormalizeURL(target.String())
			return nil
		}),
	)
	if err != nil {
		if errors.Is(err, errRedirectVisited) {
			s.logger.Debug("redirect target already visited", "url", pageURL, "error", err)
			return nil
		}
		if ctx.Err() == nil {
			session.Report.AddPageFailure(pageURL, err)
			s.logger.Warn("failed to fetch page", "url", pageURL, "error", err)
		}
		return nil
	}
	session.Report.AddPage()

	// Fetchers that do not apply the redirect filter still must not hand
	// back a page that another worker owns.
	if final := model.NormalizeURL(resp.URL); resp.URL != "" && final != model.NormalizeURL(pageURL) && final != accepted {
		if !session.Visited.Add(final) {
			s.logger.Debug("redirect target already visited", "url", pageURL, "final_url", resp.URL)
			return nil
		}
	}

	result := s.parsePage(session, resp)
	if result == nil {
		return nil
	}

	for _, imageURL := range result.Images {
		if ctx.Err() != nil {
			return nil
		}
		if !classify.IsImage(imageURL) {
			s.logger.Debug("skipping non-image reference", "url", imageURL)
			continue
		}
		if s.sameDomainImages && !session.InDomain(imageURL) {
			s.logger.Debug("skipping image on another host", "url", imageURL)
			continue
		}
		s.saveImage(ctx, session, saver, imageURL, pageURL)
	}

	return result.Links
}

// parsePage extracts references from an HTML response. Non-HTML responses
// and undecodable bodies yield nil.
func (s *Spider) parsePage(session *Session, resp *fetch.Response) *ParseResult {
	if !resp.IsHTML() {
		s.logger.Debug("skipping non-HTML page", "url", resp.URL, "content_type", resp.ContentType)
		return nil
	}

	text, err := resp.Text()
	if err != nil {
		session.Report.AddFailure(model.FailureParse, resp.URL, err)
		s.logger.Warn("failed to decode page", "url", resp.URL, "error", err)
		return nil
	}

	baseURL := resp.URL
	if baseURL == "" {
		baseURL = session.Seed.URL
	}
	parser, err := NewParser(baseURL)
	if err != nil {
		session.Report.AddFailure(model.FailureParse, resp.URL, err)
		return nil
	}

	result, err := parser.Parse(strings.NewReader(text))
	if err != nil {
		session.Report.AddFailure(model.FailureParse, resp.URL, err)
		s.logger.Warn("failed to parse page", "url", resp.URL, "error", err)
		return nil
	}

	s.logger.Debug("parsed page",
		"url", resp.URL,
		"title", result.Title,
		"images", len(result.Images),
		"links", len(result.Links),
	)
	return result
}

// saveImage hands one image to the Download Sink and records the outcome.
func (s *Spider) saveImage(ctx context.Context, session *Session, saver *sink.Sink, imageURL, pageURL string) {
	download, err := saver.Save(ctx, imageURL, pageURL)
	switch {
	case err == nil:
		session.Report.AddDownload(*download)
		s.logger.Debug("saved image", "url", imageURL, "path", download.Path, "size", download.Size)
		if s.onDownload != nil {
			s.onDownload(*download)
		}

	case errors.Is(err, sink.ErrAlreadyDownloaded):
		session.Report.AddSkipped()
		s.logger.Debug("image already downloaded", "url", imageURL)

	case errors.Is(err, sink.ErrPreviouslyFailed):
		s.logger.Debug("image failed earlier in this run", "url", imageURL)

	case ctx.Err() != nil:
		// Cancelled; not an image failure.

	default:
		kind := model.FailureFetch
		var writeErr *sink.WriteError
		if errors.As(err, &writeErr) {
			kind = model.FailureWrite
		}
		session.Report.AddFailure(kind, imageURL, err)
		s.logger.Warn("failed to download image", "url", imageURL, "error", err)
	}
}
