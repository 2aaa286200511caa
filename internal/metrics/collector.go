package metrics

import (
	"fmt"
	"strconv"

	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/urlnorm"
	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every metric name.
const namespace = "pcrawl"

// Page outcome label values.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Collector records crawl metrics on a private registry.
// It is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	// Counters
	pagesTotal     *prometheus.CounterVec
	responsesTotal *prometheus.CounterVec
	linksTotal     *prometheus.CounterVec

	// Gauges
	inFlight prometheus.Gauge

	// Histograms
	pageDuration prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Total number of pages processed, by outcome",
			},
			[]string{"outcome"},
		),
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Total number of HTTP responses, by status code",
			},
			[]string{"code"},
		),
		linksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "links_total",
				Help:      "Total number of links, by stage (extracted or enqueued)",
			},
			[]string{"stage"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pages_in_flight",
				Help:      "Number of pages currently being processed",
			},
		),
		pageDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_duration_seconds",
				Help:      "Time spent processing a page in seconds",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),
	}

	collectors := []prometheus.Collector{
		c.pagesTotal,
		c.responsesTotal,
		c.linksTotal,
		c.inFlight,
		c.pageDuration,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// PageStarted implements crawler.Recorder.
func (c *Collector) PageStarted(urlnorm.URL) {
	c.inFlight.Inc()
}

// PageFinished implements crawler.Recorder.
func (c *Collector) PageFinished(page *model.PageResult) {
	c.inFlight.Dec()

	outcome := outcomeOK
	if page.Failed() {
		outcome = outcomeError
	}
	c.pagesTotal.WithLabelValues(outcome).Inc()

	if page.StatusCode > 0 {
		c.responsesTotal.WithLabelValues(strconv.Itoa(page.StatusCode)).Inc()
	}

	c.linksTotal.WithLabelValues("extracted").Add(float64(page.OutboundLinks))
	c.linksTotal.WithLabelValues("enqueued").Add(float64(page.EnqueuedLinks))
	c.pageDuration.Observe(page.Duration.Seconds())
}

// Registry returns the registry holding the crawl metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current metrics to path in the text exposition
// format. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
