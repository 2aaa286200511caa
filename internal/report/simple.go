package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/pcrawl/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports.
// By default only failed pages are listed; WithVerbose lists every page.
type SimpleWriter struct {
	baseWriter

	// verbose lists every visited page instead of only failures.
	verbose bool

	// printer formats numbers with locale grouping.
	printer *message.Printer
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every visited page.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithLanguage sets the locale used for number formatting. Default is English.
func WithLanguage(tag language.Tag) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.printer = message.NewPrinter(tag)
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary followed by the page listing.
func (w *SimpleWriter) Write(result *model.CrawlResult) (int, error) {
	var sb strings.Builder
	w.writeSummary(&sb, NewSummary(result))
	w.writePages(&sb, result)
	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs only the summary block.
func (w *SimpleWriter) WriteSummary(summary *Summary) (int, error) {
	var sb strings.Builder
	w.writeSummary(&sb, summary)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                            CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:   %s\n", s.StartURL)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:     %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(sb, "Elapsed:     %s\n", s.Elapsed.Round(msRound))
	fmt.Fprintf(sb, "Status:      %s\n", s.Status())
	sb.WriteString("\n")

	sb.WriteString(w.printer.Sprintf("Visited:     %d\n", s.Visited))
	sb.WriteString(w.printer.Sprintf("Fetched:     %d\n", s.Fetched))
	sb.WriteString(w.printer.Sprintf("  OK:        %d\n", s.Succeeded))
	sb.WriteString(w.printer.Sprintf("  Failed:    %d\n", s.Failed))
	sb.WriteString(w.printer.Sprintf("Unfetched:   %d\n", s.Unfetched))
	sb.WriteString(w.printer.Sprintf("Links seen:  %d\n", s.TotalLinks))

	if len(s.StatusClasses) > 0 {
		sb.WriteString("\nResponses:\n")
		for _, class := range s.sortedClasses() {
			sb.WriteString(w.printer.Sprintf("  %-5s %d\n", class, s.StatusClasses[class]))
		}
	}

	if len(s.TopErrors) > 0 {
		sb.WriteString("\nTop errors:\n")
		for _, e := range s.TopErrors {
			sb.WriteString(w.printer.Sprintf("  %5d  %s\n", e.Count, e.Message))
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, result *model.CrawlResult) {
	title := "Failed pages"
	if w.verbose {
		title = "Pages"
	}

	var lines []string
	for i := range result.Pages {
		p := &result.Pages[i]
		if !w.verbose && !p.Failed() {
			continue
		}
		lines = append(lines, w.pageLine(p))
	}
	if len(lines) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%s (%d)\n", title, len(lines))
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	for _, line := range lines {
		sb.WriteString(line)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) pageLine(p *model.PageResult) string {
	switch {
	case !p.Fetched:
		return fmt.Sprintf("  [ - ] %s (not fetched)\n", p.URL)
	case p.Failed():
		return fmt.Sprintf("  [%s] %s: %s\n", statusText(p.StatusCode), p.URL, p.ErrorMessage())
	default:
		return w.printer.Sprintf("  [%s] %s (%d links, %v)\n", statusText(p.StatusCode), p.URL, p.OutboundLinks, p.Duration.Round(msRound))
	}
}

func statusText(code int) string {
	if code <= 0 {
		return "ERR"
	}
	return fmt.Sprintf("%3d", code)
}
