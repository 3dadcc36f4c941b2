package extracthtml

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qretaio/html2json/internal/spec"
)

// SourceFileKey is the key added to every object emitted in directory mode.
const SourceFileKey = "source_file"

// DirOptions tunes StreamFromDir.
type DirOptions struct {
	// Workers bounds concurrent extractions. Defaults to GOMAXPROCS.
	Workers int

	// Loader reads each file. Defaults to a Loader with no timeout.
	Loader *Loader

	// OnResult, if set, sees every emitted value in output order. An error
	// stops the stream.
	OnResult func(file string, v any) error
}

type fileResult struct {
	values []any
}

// StreamFromDir streams a single JSON array to w, emitting one object per file,
// and adding "source_file" to each emitted object.
//
// Behavior:
//   - stable ordering by filename, regardless of which worker finishes first
//   - unreadable, unparseable or failing files are skipped and logged
//   - array specs emit one element per item
//   - non-object results are wrapped as {"value": v, "source_file": name}
//   - empty objects are not emitted
func (x *Extractor) StreamFromDir(ctx context.Context, w io.Writer, dir string, s *spec.Spec, enc *json.Encoder, opts DirOptions) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	loader := opts.Loader
	if loader == nil {
		loader = NewLoader(nil, 0)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make([]chan fileResult, len(names))
	for i := range slots {
		slots[i] = make(chan fileResult, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, name := range names {
			g.Go(func() error {
				if gctx.Err() != nil {
					slots[i] <- fileResult{}
					return nil
				}
				slots[i] <- x.extractFile(gctx, loader, filepath.Join(dir, name), name, s)
				return nil
			})
		}
	}()
	defer func() {
		cancel()
		<-launched
		_ = g.Wait()
	}()

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for i, name := range names {
		var res fileResult
		select {
		case res = <-slots[i]:
		case <-ctx.Done():
			return ctx.Err()
		}

		for _, v := range res.values {
			if opts.OnResult != nil {
				if err := opts.OnResult(name, v); err != nil {
					return err
				}
			}
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return fmt.Errorf("write comma: %w", err)
				}
			}
			first = false
			if err := enc.Encode(v); err != nil {
				return fmt.Errorf("encode %s: %w", name, err)
			}
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}

// extractFile loads and extracts one file. Failures yield an empty result.
func (x *Extractor) extractFile(ctx context.Context, loader *Loader, path, name string, s *spec.Spec) fileResult {
	src, err := loader.Load(ctx, Input{Source: path})
	if err != nil {
		x.log.Warn("skip unreadable file", zap.String("file", name), zap.Error(err))
		return fileResult{}
	}
	out, err := x.Extract(src, s)
	if err != nil {
		x.log.Warn("skip file", zap.String("file", name), zap.Error(err))
		return fileResult{}
	}

	var vals []any
	if items, ok := out.([]any); ok {
		for _, it := range items {
			if v, ok := withSource(it, name); ok {
				vals = append(vals, v)
			}
		}
	} else if v, ok := withSource(out, name); ok {
		vals = append(vals, v)
	}
	return fileResult{values: vals}
}

func withSource(v any, name string) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		if len(m) == 0 {
			return nil, false
		}
		m[SourceFileKey] = name
		return m, true
	}
	return map[string]any{"value": v, SourceFileKey: name}, true
}
