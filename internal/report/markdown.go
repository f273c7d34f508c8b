package report

import (
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/spider/internal/model"
)

// maxMarkdownDownloads limits the download table of large runs.
const maxMarkdownDownloads = 200

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter

	// version is the spider version shown in the footer.
	version string
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, version string) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeDownloads(md, report)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Spider Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + report.SeedURL + "`"},
			{"Domain", "`" + report.BaseDomain + "`"},
			{"Output Directory", "`" + report.OutputDir + "`"},
			{"Max Depth", strconv.Itoa(report.MaxDepth)},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	if report.Cancelled {
		return "⚠️ " + statusText(report)
	}
	return "✅ " + statusText(report)
}

// writeSummary writes the counters section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages visited", strconv.Itoa(report.PagesVisited)},
			{"Pages failed", strconv.Itoa(report.PagesFailed)},
			{"Images saved", strconv.Itoa(len(report.Downloads))},
			{"Bytes written", formatBytes(report.TotalBytes())},
			{"Images skipped (already saved)", strconv.Itoa(report.ImagesSkipped)},
			{"**Failures**", "**" + strconv.Itoa(len(report.Failures)) + "**"},
		},
	})
	md.PlainText("")

	if len(report.Failures) > 0 {
		w.writePieChart(md, report)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of failures by kind.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Failures by Kind"),
		piechart.WithShowData(true),
	)

	for _, kind := range failureKinds {
		if n := len(report.FailuresByKind(kind)); n > 0 {
			chart.LabelAndIntValue(kind.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert describing how the run ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	switch {
	case report.Cancelled:
		md.Warningf("The run was interrupted. %d image(s) were saved before it stopped.", len(report.Downloads))
	case len(report.FailuresByKind(model.FailureWrite)) > 0:
		md.Cautionf(
			"%d image(s) could not be written to the output directory.",
			len(report.FailuresByKind(model.FailureWrite)),
		)
	case len(report.Failures) > 0:
		md.Note("Some pages or images could not be fetched. The crawl continued past them.")
	case len(report.Downloads) == 0:
		md.Note("No images were found.")
	default:
		md.Tip("All discovered images were saved.")
	}
	md.PlainText("")
}

// writeDownloads writes the table of saved files.
func (w *MarkdownWriter) writeDownloads(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Downloads")
	md.PlainText("")

	if len(report.Downloads) == 0 {
		md.PlainText("No images were saved.")
		md.PlainText("")
		return
	}

	downloads := report.Downloads
	if len(downloads) > maxMarkdownDownloads {
		downloads = downloads[:maxMarkdownDownloads]
	}

	rows := make([][]string, len(downloads))
	for i, d := range downloads {
		rows[i] = []string{
			"`" + filepath.Base(d.Path) + "`",
			truncateString(d.URL, 60),
			formatBytes(d.Size),
			"`" + shortDigest(d.SHA256) + "`",
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"File", "Source", "Size", "SHA-256"},
		Rows:   rows,
	})
	md.PlainText("")

	if omitted := len(report.Downloads) - len(downloads); omitted > 0 {
		md.PlainTextf("*%d more download(s) omitted.*", omitted)
		md.PlainText("")
	}
}

// writeFailures writes all failures grouped by kind.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.Failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	for _, kind := range failureKinds {
		failures := report.FailuresByKind(kind)
		if len(failures) == 0 {
			continue
		}

		md.H3(kind.String())
		md.PlainText("")

		rows := make([][]string, len(failures))
		for i, f := range failures {
			msg := f.Message
			if msg == "" {
				msg = "-"
			}
			rows[i] = []string{truncateString(f.URL, 60), truncateString(msg, 80)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Error"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by spider %s*", w.version)
}

// shortDigest returns the first 12 hex digits of a digest.
func shortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
