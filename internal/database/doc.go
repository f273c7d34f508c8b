// Package database provides SQLite-based storage of spider run history.
//
// This package implements the HistoryDB, which stores:
//   - One row per crawl run with its summary counters and the full report
//   - One row per downloaded image, linked to its run
//
// The history is record-only: it is never consulted to skip work in a
// later run. Every run starts with empty visited and downloaded sets.
package database
