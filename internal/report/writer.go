package report

import (
	"io"

	"github.com/nao1215/pcrawl/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the complete crawl result.
	Write(result *model.CrawlResult) (int, error)

	// WriteSummary outputs only the aggregated counts.
	WriteSummary(summary *Summary) (int, error)
}

// MultiWriter writes to multiple Writers in order and stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all Writers and returns the total bytes written.
func (m *MultiWriter) Write(result *model.CrawlResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all Writers.
func (m *MultiWriter) WriteSummary(summary *Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
