// Package prompush is a metrics.Backend that keeps Prometheus collectors in a
// private registry and pushes them to a Pushgateway on Flush.
//
// Short-lived CLI runs cannot be scraped, so the push model fits: one push
// per Flush, grouped by job.
package prompush

import (
	"errors"
	"fmt"
	"sync"

	"github.com/qretaio/html2json/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Options configures the backend.
type Options struct {
	// URL of the Pushgateway, e.g. http://pushgateway:9091. Required.
	URL string
	// Job is the Pushgateway grouping job. Defaults to "html2json".
	Job string
	// Grouping adds extra grouping labels (e.g. instance).
	Grouping map[string]string
}

// Backend implements metrics.Backend.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	mu sync.Mutex

	extractTotal    *prometheus.CounterVec
	extractDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpErrors      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpBytes       *prometheus.HistogramVec
	sinkRows        *prometheus.CounterVec
}

// New builds the registry and collectors.
func New(opts Options) (*Backend, error) {
	if opts.URL == "" {
		return nil, errors.New("prompush: pushgateway URL is required")
	}
	job := opts.Job
	if job == "" {
		job = "html2json"
	}

	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	b := &Backend{
		reg: reg,
		extractTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.ExtractTotal,
				Help: "Extractions by outcome",
			},
			[]string{"status"},
		),
		extractDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metrics.ExtractDuration,
				Help:    "Extraction duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"status"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.HTTPRequestsTotal,
				Help: "HTTP fetches by status code",
			},
			[]string{"status"},
		),
		httpErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.HTTPErrorsTotal,
				Help: "Failed HTTP fetches by status code",
			},
			[]string{"status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metrics.HTTPRequestDuration,
				Help:    "HTTP fetch duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		httpBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metrics.HTTPDownloadBytes,
				Help:    "Downloaded body size in bytes",
				Buckets: []float64{1000, 10000, 100000, 1000000, 10000000, 100000000},
			},
			[]string{"status"},
		),
		sinkRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.SinkRowsTotal,
				Help: "Rows written to result sinks",
			},
			[]string{"sink"},
		),
	}

	p := push.New(opts.URL, job).Gatherer(reg)
	for k, v := range opts.Grouping {
		p = p.Grouping(k, v)
	}
	b.pusher = p
	return b, nil
}

// Registry exposes the private registry, mainly for tests.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	var c *prometheus.CounterVec
	label := labels["status"]
	switch name {
	case metrics.ExtractTotal:
		c = b.extractTotal
	case metrics.HTTPRequestsTotal:
		c = b.httpRequests
	case metrics.HTTPErrorsTotal:
		c = b.httpErrors
	case metrics.SinkRowsTotal:
		c, label = b.sinkRows, labels["sink"]
	default:
		return
	}
	c.WithLabelValues(label).Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	var h *prometheus.HistogramVec
	switch name {
	case metrics.ExtractDuration:
		h = b.extractDuration
	case metrics.HTTPRequestDuration:
		h = b.httpDuration
	case metrics.HTTPDownloadBytes:
		h = b.httpBytes
	default:
		return
	}
	h.WithLabelValues(labels["status"]).Observe(value)
}

// Flush pushes every collector, replacing the previous push for this group.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
