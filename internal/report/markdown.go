package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/pcrawl/internal/model"
)

// maxMarkdownPages bounds the page table so huge crawls stay readable.
const maxMarkdownPages = 500

// MarkdownWriter outputs reports in GitHub flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary and a page table.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeSummary(md, NewSummary(result))
	w.writePages(md, result)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteSummary outputs only the summary sections.
func (w *MarkdownWriter) WriteSummary(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeSummary(md, summary)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s *Summary) {
	md.H1("Crawl Report")
	md.PlainText("")

	started := "-"
	if !s.StartedAt.IsZero() {
		started = s.StartedAt.Format("2006-01-02 15:04:05 MST")
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + s.StartURL + "`"},
			{"Started", started},
			{"Elapsed", s.Elapsed.Round(msRound).String()},
			{"Status", statusBadge(s)},
		},
	})
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Pages"},
		Rows: [][]string{
			{"✅ OK", strconv.Itoa(s.Succeeded)},
			{"❌ Failed", strconv.Itoa(s.Failed)},
			{"⏸️ Not fetched", strconv.Itoa(s.Unfetched)},
			{"**Visited**", "**" + strconv.Itoa(s.Visited) + "**"},
		},
	})
	md.PlainText("")

	if s.Visited > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)

	if len(s.TopErrors) > 0 {
		md.H2("Top Errors")
		md.PlainText("")
		rows := make([][]string, len(s.TopErrors))
		for i, e := range s.TopErrors {
			rows[i] = []string{truncateString(e.Message, 80), strconv.Itoa(e.Count)}
		}
		md.Table(markdown.TableSet{Header: []string{"Error", "Pages"}, Rows: rows})
		md.PlainText("")
	}
}

func statusBadge(s *Summary) string {
	if s.Partial {
		return "⚠️ " + s.Status()
	}
	return "✅ " + s.Status()
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)
	if s.Succeeded > 0 {
		chart.LabelAndIntValue("OK", uint64(s.Succeeded))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}
	if s.Unfetched > 0 {
		chart.LabelAndIntValue("Not fetched", uint64(s.Unfetched))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	switch {
	case s.Partial:
		md.Warningf("The crawl stopped early (%s). %d discovered page(s) were not fetched.", s.Reason, s.Unfetched)
	case s.Failed > 0:
		md.Importantf("%d of %d fetched page(s) failed.", s.Failed, s.Fetched)
	case s.Reason == model.StopReasonBudget:
		md.Note("The page budget was reached before the site was exhausted.")
	default:
		md.Tip("Every reachable page was fetched successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, result *model.CrawlResult) {
	md.H2("Pages")
	md.PlainText("")

	if len(result.Pages) == 0 {
		md.PlainText("No pages visited.")
		md.PlainText("")
		return
	}

	pages := result.Pages
	if len(pages) > maxMarkdownPages {
		pages = pages[:maxMarkdownPages]
	}
	rows := make([][]string, len(pages))
	for i := range pages {
		p := &pages[i]
		rows[i] = []string{
			strconv.Itoa(p.Seq),
			truncateString(p.URL, 80),
			pageStatus(p),
			strconv.Itoa(p.OutboundLinks),
			strconv.Itoa(p.EnqueuedLinks),
			p.Duration.Round(msRound).String(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Status", "Links", "New", "Time"},
		Rows:   rows,
	})
	md.PlainText("")
	if len(result.Pages) > maxMarkdownPages {
		md.PlainTextf("*%d more page(s) omitted.*", len(result.Pages)-maxMarkdownPages)
		md.PlainText("")
	}
}

func pageStatus(p *model.PageResult) string {
	switch {
	case !p.Fetched:
		return "-"
	case p.Failed():
		if p.StatusCode > 0 {
			return fmt.Sprintf("❌ %d", p.StatusCode)
		}
		return "❌ " + truncateString(p.ErrorMessage(), 40)
	default:
		return strconv.Itoa(p.StatusCode)
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [pcrawl](https://github.com/nao1215/pcrawl)*")
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
