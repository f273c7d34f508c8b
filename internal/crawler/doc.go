// Package crawler implements the crawl engine of the spider.
//
// # Architecture
//
// A Spider walks a website breadth first from a seed URL. Every Crawl call
// creates a fresh Session holding the visited set, the downloaded set and
// the base domain of that run, so nothing leaks between runs.
//
// Pages of one depth level form a work list. The list is processed by up
// to Workers goroutines; links found on the level are queued, in document
// order, only after the whole level has finished. Because a page is always
// discovered first at its shallowest depth, every page is fetched exactly
// once and never deeper than MaxDepth.
//
// # Policy
//
//   - The base domain is the host of the seed (port included) and is fixed
//     for the whole run. Links to other hosts are dropped without being
//     marked visited.
//   - A URL is marked visited when it is queued, which is before its fetch.
//   - Image references (<img src>) are saved through the Download Sink
//     whatever their host, provided their path has an image extension.
//   - No per-page or per-image failure aborts the crawl. Failures are logged
//     and recorded in the CrawlReport.
//
// # Usage
//
//	spider := crawler.NewSpider(fetcher, crawler.WithMaxDepth(2))
//	report, err := spider.Crawl(ctx, "http://example.com/", "./data/")
package crawler
