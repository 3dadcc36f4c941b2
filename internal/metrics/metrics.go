// Package metrics is the backend-agnostic metrics facade.
//
// Library and CLI code record through the helpers here (RecordExtract,
// RecordHTTP, RecordSinkRows). A process installs one Backend with
// SetBackend; until then every call goes to a no-op backend, so tests and
// library users pay nothing.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names. Backends switch on these.
const (
	ExtractTotal        = "html2json_extract_total"
	ExtractDuration     = "html2json_extract_duration_seconds"
	HTTPRequestsTotal   = "html2json_http_requests_total"
	HTTPErrorsTotal     = "html2json_http_errors_total"
	HTTPRequestDuration = "html2json_http_request_duration_seconds"
	HTTPDownloadBytes   = "html2json_http_download_bytes"
	SinkRowsTotal       = "html2json_sink_rows_total"
)

// Extraction outcomes used as the "status" label.
const (
	StatusOK         = "ok"
	StatusSpecError  = "spec_error"
	StatusParseError = "parse_error"
	StatusError      = "error"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process backend. nil restores the no-op one.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	current = b
}

func get() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Flush flushes the installed backend.
func Flush() error { return get().Flush() }

// RecordExtract records one extraction and how long it took.
func RecordExtract(status string, d time.Duration) {
	b := get()
	l := Labels{"status": status}
	b.IncCounter(ExtractTotal, 1, l)
	b.ObserveHistogram(ExtractDuration, d.Seconds(), l)
}

// RecordHTTP records one HTTP fetch. status is the response code, or 0 when
// the request failed before a response arrived.
func RecordHTTP(status int, d time.Duration, bytes int64, failed bool) {
	b := get()
	l := Labels{"status": statusLabel(status)}
	b.IncCounter(HTTPRequestsTotal, 1, l)
	if failed {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestDuration, d.Seconds(), l)
	if bytes > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}

// RecordSinkRows records rows written to a result sink.
func RecordSinkRows(kind string, n int) {
	if n <= 0 {
		return
	}
	get().IncCounter(SinkRowsTotal, float64(n), Labels{"sink": kind})
}

func statusLabel(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code)
}
