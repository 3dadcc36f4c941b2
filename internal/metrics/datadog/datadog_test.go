package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/qretaio/html2json/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		Tags:       []string{"team:data"},
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func seriesByName(series []datadogV2.MetricSeries) map[string][]datadogV2.MetricSeries {
	out := make(map[string][]datadogV2.MetricSeries)
	for _, s := range series {
		out[s.Metric] = append(out[s.Metric], s)
	}
	return out
}

func pointValue(t *testing.T, s datadogV2.MetricSeries) float64 {
	t.Helper()
	if len(s.Points) != 1 || s.Points[0].Value == nil {
		t.Fatalf("series %s: expected one point, got %#v", s.Metric, s.Points)
	}
	return *s.Points[0].Value
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

// TestFlush_SubmitsBufferedSeries verifies that counters and histograms
// recorded through the backend interface are emitted under their Datadog
// names with the base tags plus the label tag, and that buffers reset.
func TestFlush_SubmitsBufferedSeries(t *testing.T) {
	t.Setenv("ENV", "ci")

	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.ExtractTotal, 1, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.ExtractTotal, 2, metrics.Labels{"status": "ok"})
	b.ObserveHistogram(metrics.ExtractDuration, 0.5, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"status": "200"})
	b.ObserveHistogram(metrics.HTTPDownloadBytes, 1024, metrics.Labels{"status": "200"})
	b.IncCounter(metrics.SinkRowsTotal, 5, metrics.Labels{"sink": "sqlite"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("expected 1 submission, got %d", sub.count())
	}

	byName := seriesByName(sub.payloads[0].Series)

	ext := byName["html2json.extract.total"]
	if len(ext) != 1 {
		t.Fatalf("expected one extract.total series, got %d", len(ext))
	}
	if got := pointValue(t, ext[0]); got != 3 {
		t.Fatalf("extract.total: got %v, want 3", got)
	}
	for _, tag := range []string{"env:ci", "job:test", "team:data", "status:ok"} {
		if !hasTag(ext[0].Tags, tag) {
			t.Fatalf("extract.total missing tag %q: %v", tag, ext[0].Tags)
		}
	}
	if ext[0].Type == nil || *ext[0].Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Fatalf("extract.total should be a count, got %v", ext[0].Type)
	}

	if p50 := byName["html2json.extract.duration_seconds.p50"]; len(p50) != 1 || pointValue(t, p50[0]) != 0.5 {
		t.Fatalf("unexpected extract duration p50: %#v", p50)
	}
	if n := byName["html2json.http.download_bytes.samples"]; len(n) != 1 || pointValue(t, n[0]) != 1 {
		t.Fatalf("unexpected download samples: %#v", n)
	}
	rows := byName["html2json.sink.rows.total"]
	if len(rows) != 1 || !hasTag(rows[0].Tags, "sink:sqlite") || pointValue(t, rows[0]) != 5 {
		t.Fatalf("unexpected sink rows: %#v", rows)
	}

	// A second flush with nothing recorded must not submit.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("empty flush submitted; count=%d", sub.count())
	}
}

// TestIncCounter_IgnoresNoise verifies non-positive deltas, unknown names and
// sink rows without a kind never reach the buffers.
func TestIncCounter_IgnoresNoise(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.ExtractTotal, 0, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.ExtractTotal, -1, metrics.Labels{"status": "ok"})
	b.IncCounter("something_else", 1, nil)
	b.IncCounter(metrics.SinkRowsTotal, 3, metrics.Labels{})
	b.ObserveHistogram(metrics.ExtractDuration, -0.1, nil)

	if !b.snapshotAndReset().isEmpty() {
		t.Fatalf("expected empty buffers")
	}
}

// TestStatusOf_DefaultsToUnknown verifies a missing status label still
// produces a tagged series.
func TestStatusOf_DefaultsToUnknown(t *testing.T) {
	t.Parallel()

	if got := statusOf(nil); got != "unknown" {
		t.Fatalf("statusOf(nil) = %q", got)
	}
	if got := statusOf(metrics.Labels{"status": "404"}); got != "404" {
		t.Fatalf("statusOf = %q", got)
	}
}

// TestFlush_ReturnsSubmitError verifies submission errors surface and that
// the window is dropped rather than retried.
func TestFlush_ReturnsSubmitError(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{err: errors.New("boom")}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.HTTPErrorsTotal, 1, metrics.Labels{"status": "error"})
	if err := b.Flush(); err == nil {
		t.Fatalf("expected error")
	}
	if !b.snapshotAndReset().isEmpty() {
		t.Fatalf("buffers should reset even on failure")
	}
}

// TestLoop_FlushesOnTick drives the loop with a short ticker and waits for a
// submission without calling Flush directly.
func TestLoop_FlushesOnTick(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		submitter:  sub,
		FlushEvery: time.Hour,
		newTicker: func(time.Duration) *time.Ticker {
			return time.NewTicker(5 * time.Millisecond)
		},
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()

	b.IncCounter(metrics.ExtractTotal, 1, metrics.Labels{"status": "ok"})

	deadline := time.Now().Add(2 * time.Second)
	for sub.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("loop never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestClose_FinalFlushAndIdempotent verifies Close flushes pending data and
// can be called twice.
func TestClose_FinalFlushAndIdempotent(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{submitter: sub, FlushEvery: time.Hour})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.ExtractTotal, 1, metrics.Labels{"status": "ok"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("expected exactly one submission, got %d", sub.count())
	}
}

// TestResolveEnvTag covers the ENV / DD_ENV precedence.
func TestResolveEnvTag(t *testing.T) {
	cases := []struct {
		name  string
		env   string
		ddEnv string
		want  string
	}{
		{"env wins", "prod", "staging", "env:prod"},
		{"dd_env fallback", "", "staging", "env:staging"},
		{"whitespace ignored", "  ", "", "env:unknown"},
		{"unset", "", "", "env:unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.ddEnv)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// TestPercentileNearestRank pins the rounding used for summary gauges.
func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 6},
		{0.9, 9},
		{0.99, 10},
		{1, 10},
	}
	for _, tc := range cases {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Fatalf("p=%v: got %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty: got %v", got)
	}
}

// TestAppendPercentiles_DoesNotMutateInput verifies samples are sorted on a
// copy and that six gauges are emitted.
func TestAppendPercentiles_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	samples := []float64{3, 1, 2}
	out := appendPercentiles(nil, "x", samples, []string{"a:b"}, 1)
	if len(out) != 6 {
		t.Fatalf("expected 6 series, got %d", len(out))
	}
	if !reflect.DeepEqual(samples, []float64{3, 1, 2}) {
		t.Fatalf("input mutated: %v", samples)
	}
	if out[4].Metric != "x.max" || *out[4].Points[0].Value != 3 {
		t.Fatalf("unexpected max series: %#v", out[4])
	}
	if appendPercentiles(nil, "x", nil, nil, 1) != nil {
		t.Fatalf("empty samples should add nothing")
	}
}

// TestWithTags verifies the base slice is never aliased.
func TestWithTags(t *testing.T) {
	t.Parallel()

	base := make([]string, 1, 4)
	base[0] = "job:x"
	a := withTags(base, "status:ok")
	b := withTags(base, "status:err")
	if a[1] != "status:ok" || b[1] != "status:err" {
		t.Fatalf("aliasing detected: %v %v", a, b)
	}
}

// TestParseTagsCSV covers trimming and empty entries.
func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	if got := ParseTagsCSV(""); got != nil {
		t.Fatalf("empty: got %v", got)
	}
	got := ParseTagsCSV(" env:prod, ,team:data ,")
	want := []string{"env:prod", "team:data"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
