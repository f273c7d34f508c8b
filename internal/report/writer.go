package report

import (
	"io"
	"strconv"

	"github.com/nao1215/spider/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)
}

// Format selects a report output format.
type Format int

const (
	// FormatText is the human-readable default.
	FormatText Format = iota
	// FormatJSON is indented JSON wrapped with the tool version.
	FormatJSON
	// FormatMarkdown is GitHub-flavored Markdown.
	FormatMarkdown
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// NewWriter returns the Writer for format writing to output.
// version is embedded in formats that carry it.
func NewWriter(output io.Writer, format Format, version string) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, version, WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output, version)
	default:
		return NewSimpleWriter(output)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText returns a short description of how the run ended.
func statusText(report *model.CrawlReport) string {
	if report.Cancelled {
		return "Interrupted (partial results)"
	}
	return "Complete"
}

// formatBytes returns a human-readable byte count.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(n)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
