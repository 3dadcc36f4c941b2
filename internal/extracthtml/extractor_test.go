package extracthtml

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/qretaio/html2json/internal/extract"
	"github.com/qretaio/html2json/internal/metrics"
	"github.com/qretaio/html2json/internal/resolve"
	"github.com/qretaio/html2json/internal/spec"
)

func mustSpec(t *testing.T, js string) *spec.Spec {
	t.Helper()
	s, err := spec.Parse([]byte(js))
	if err != nil {
		t.Fatalf("spec.Parse(%s): %v", js, err)
	}
	return s
}

// TestExtractor_Object verifies the single-object mode: fields are evaluated
// against the whole document and attribute values pass through pipes.
func TestExtractor_Object(t *testing.T) {
	t.Parallel()

	html := `<h1>Title</h1><a class="x" href=" https://example.com/path ">link</a>`
	x := NewExtractor(extract.Options{})

	got, err := x.Extract(html, mustSpec(t, `{"title":"h1","href":"a.x | attr:href | trim","missing":"h2"}`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := map[string]any{"title": "Title", "href": "https://example.com/path", "missing": nil}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v got %#v", want, got)
	}
}

// TestExtractor_Records verifies the record mode: a root array spec produces
// one object per matched container, in document order.
func TestExtractor_Records(t *testing.T) {
	t.Parallel()

	html := `
		<div class="rec"><span class="name">A</span><b>1</b></div>
		<div class="rec"><span class="name">B</span><b>2</b></div>
	`
	got, err := NewExtractor(extract.Options{}).ExtractJSON(html, []byte(`[{"$":".rec","name":".name","n":"b | parseAs:int"}]`))
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	want := []any{
		map[string]any{"name": "A", "n": int64(1)},
		map[string]any{"name": "B", "n": int64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v got %#v", want, got)
	}
}

// TestExtractor_RegexAll mirrors the old "collect every match" mapping: an
// array of self items with a regex pipe keeps capture group 1.
func TestExtractor_RegexAll(t *testing.T) {
	t.Parallel()

	html := `<ul><li>id=1</li><li>id=22</li><li>none</li></ul>`
	got, err := NewExtractor(extract.Options{}).ExtractJSON(html, []byte(`{"ids":[{"$":"li","v":"$ | regex:id=(\\d+)"}]}`))
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	want := map[string]any{"ids": []any{
		map[string]any{"v": "1"},
		map[string]any{"v": "22"},
		map[string]any{"v": nil},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v got %#v", want, got)
	}
}

// TestExtractor_Errors verifies spec errors surface as *spec.ParseError and
// engine errors keep their cause.
func TestExtractor_Errors(t *testing.T) {
	t.Parallel()

	x := NewExtractor(extract.Options{})

	_, err := x.ExtractJSON("<p>x</p>", []byte(`{"a":"p | shout"}`))
	var pe *spec.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *spec.ParseError, got %T %v", err, err)
	}

	_, err = x.ExtractJSON("<p>x</p>", []byte(`{"a":"+ p"}`))
	if !errors.Is(err, resolve.ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired, got %v", err)
	}
}

type countingBackend struct {
	mu       sync.Mutex
	statuses []string
}

func (c *countingBackend) IncCounter(name string, _ float64, l metrics.Labels) {
	if name != metrics.ExtractTotal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, l["status"])
}
func (c *countingBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (c *countingBackend) Flush() error                                    { return nil }

// TestExtractor_RecordsMetrics verifies each call records exactly one
// outcome with the right status.
//
// Not parallel: it installs a process-wide metrics backend.
func TestExtractor_RecordsMetrics(t *testing.T) {
	rec := &countingBackend{}
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	x := NewExtractor(extract.Options{})
	_, _ = x.ExtractJSON("<p>x</p>", []byte(`{"a":"p"}`))
	_, _ = x.ExtractJSON("<p>x</p>", []byte(`{"a":"p | nope"}`))
	_, _ = x.ExtractJSON("<p>x</p>", []byte(`{"a":"p | regex:("}`))

	want := []string{metrics.StatusOK, metrics.StatusSpecError, metrics.StatusError}
	if !reflect.DeepEqual(rec.statuses, want) {
		t.Fatalf("want %v got %v", want, rec.statuses)
	}
}

// TestExtractor_ConcurrentUse shares one extractor across goroutines.
func TestExtractor_ConcurrentUse(t *testing.T) {
	t.Parallel()

	x := NewExtractor(extract.Options{})
	s := mustSpec(t, `{"v":"p | regex:(\\d+)"}`)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := x.Extract("<p>n=42</p>", s)
			if err != nil {
				errs <- err
				return
			}
			if got.(map[string]any)["v"] != "42" {
				errs <- errors.New("wrong value")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
