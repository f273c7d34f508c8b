// Package model defines the data structures shared by the spider packages.
//
// This package contains the following main types:
//   - Target: a normalized absolute URL with derived host, path and extension
//   - URLSet: a concurrency-safe set used for the visited pages of a run
//   - CrawlReport: the summary of one crawl run
//   - Download and Failure: per-item outcomes recorded in the report
//
// CrawlReport is serializable to JSON for report output and database
// storage.
package model
