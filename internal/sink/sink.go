// Package sink stores extraction results in a SQL database.
//
// Backends register themselves by kind from init functions; import
// internal/sink/all to get every backend. Each row holds the input source, the
// extraction time and the JSON payload.
package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend.
//   - Table may be schema-qualified ("dbo.results"); each part must be a plain
//     identifier.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Record is one stored extraction result.
type Record struct {
	Source      string
	ExtractedAt time.Time
	Payload     any
}

// Sink writes records to a table.
type Sink interface {
	// EnsureTable creates the results table if it does not exist.
	EnsureTable(ctx context.Context) error

	// Insert writes recs in one statement and returns the number of rows
	// written. An empty slice is a no-op.
	Insert(ctx context.Context, recs []Record) (int64, error)

	// Close releases connections. Call once.
	Close()
}

// Factory builds a backend from cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a backend under kind.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("sink: Register called with empty kind")
	}
	if f == nil {
		panic("sink: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("sink: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New builds the backend registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("sink: missing kind")
	}
	if err := ValidateTable(cfg.Table); err != nil {
		return nil, err
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("sink: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists registered backends.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

var tablePart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable rejects table names that would need quoting beyond what the
// backends do for plain identifiers.
func ValidateTable(name string) error {
	if name == "" {
		return fmt.Errorf("sink: table name is empty")
	}
	for _, part := range SplitTable(name) {
		if !tablePart.MatchString(part) {
			return fmt.Errorf("sink: invalid table name %q", name)
		}
	}
	return nil
}

// SplitTable splits an optionally schema-qualified table name.
func SplitTable(name string) []string {
	return strings.Split(name, ".")
}

// Columns are the result table columns, in insert order.
var Columns = []string{"source", "extracted_at", "payload"}

// Row converts rec into insert arguments matching Columns. The payload is
// encoded as JSON text and the time is normalized to UTC.
func Row(rec Record) ([]any, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("sink: encode payload for %q: %w", rec.Source, err)
	}
	ts := rec.ExtractedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return []any{rec.Source, ts.UTC(), string(payload)}, nil
}

// Rows converts every record with Row.
func Rows(recs []Record) ([][]any, error) {
	out := make([][]any, 0, len(recs))
	for _, rec := range recs {
		row, err := Row(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Batches splits rows so that no statement binds more than maxParams
// arguments. A non-positive maxParams yields a single batch.
func Batches(rows [][]any, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if maxParams > 0 {
		per = maxParams / len(Columns)
		if per < 1 {
			per = 1
		}
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
