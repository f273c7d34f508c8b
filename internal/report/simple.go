package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/spider/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display.
type SimpleWriter struct {
	baseWriter

	// listDownloads controls whether every saved file is listed.
	listDownloads bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithDownloadList lists every saved file in the report.
func WithDownloadList(list bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.listDownloads = list
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	if w.listDownloads {
		w.writeDownloads(&sb, report)
	}
	w.writeFailures(&sb, report)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                           SPIDER REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:      %s\n", report.SeedURL)
	fmt.Fprintf(sb, "Domain:         %s\n", report.BaseDomain)
	fmt.Fprintf(sb, "Output:         %s\n", report.OutputDir)
	fmt.Fprintf(sb, "Max Depth:      %d\n", report.MaxDepth)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

// writeSummary writes the counters section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  PAGES VISITED:  %d\n", report.PagesVisited)
	fmt.Fprintf(sb, "  PAGES FAILED:   %d\n", report.PagesFailed)
	fmt.Fprintf(sb, "  IMAGES SAVED:   %d (%s)\n", len(report.Downloads), formatBytes(report.TotalBytes()))
	fmt.Fprintf(sb, "  IMAGES SKIPPED: %d\n", report.ImagesSkipped)
	fmt.Fprintf(sb, "  FAILURES:       %d\n", len(report.Failures))
	sb.WriteString("\n")
}

// writeDownloads lists every saved file.
func (w *SimpleWriter) writeDownloads(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Downloads) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("DOWNLOADS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, d := range report.Downloads {
		fmt.Fprintf(sb, "  [+] %s\n", d.Path)
		fmt.Fprintf(sb, "      From: %s\n", d.URL)
	}
	sb.WriteString("\n")
}

// writeFailures writes failures grouped by kind.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Failures) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, kind := range failureKinds {
		failures := report.FailuresByKind(kind)
		if len(failures) == 0 {
			continue
		}

		fmt.Fprintf(sb, "[%s]\n", strings.ToUpper(kind.String()))
		for _, f := range failures {
			fmt.Fprintf(sb, "  * %s\n", f.URL)
			if f.Message != "" {
				fmt.Fprintf(sb, "    %s\n", f.Message)
			}
		}
		sb.WriteString("\n")
	}
}

// failureKinds lists failure kinds in report order.
var failureKinds = []model.FailureKind{
	model.FailureFetch,
	model.FailureParse,
	model.FailureWrite,
}
