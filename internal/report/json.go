package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/spider/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// version is the spider version recorded in the output.
	version string

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport wraps the crawl report with output-specific metadata.
type JSONReport struct {
	// Version is the spider version that generated this report.
	Version string `json:"version"`

	// Summary holds the derived totals.
	Summary JSONSummary `json:"summary"`

	// Report is the full crawl report.
	Report *model.CrawlReport `json:"report"`
}

// JSONSummary holds totals derived from a report.
type JSONSummary struct {
	ImagesDownloaded int     `json:"images_downloaded"`
	TotalBytes       int64   `json:"total_bytes"`
	Failures         int     `json:"failures"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(report *model.CrawlReport, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Summary: JSONSummary{
			ImagesDownloaded: len(report.Downloads),
			TotalBytes:       report.TotalBytes(),
			Failures:         len(report.Failures),
			DurationSeconds:  report.Duration().Seconds(),
		},
		Report: report,
	}
}

// Write outputs the report wrapped with metadata.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
