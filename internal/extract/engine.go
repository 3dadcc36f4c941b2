// Package extract walks a parsed spec over a document and produces the JSON
// result.
//
// The Engine asks the resolver for the elements each selector names, the pipe
// package for field values, and the shape package for the final form of every
// object. An Engine holds only the regex cache and a logger; it is safe for
// concurrent use across documents.
package extract

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/qretaio/html2json/internal/dom"
	"github.com/qretaio/html2json/internal/pipe"
	"github.com/qretaio/html2json/internal/regexcache"
	"github.com/qretaio/html2json/internal/resolve"
	"github.com/qretaio/html2json/internal/shape"
	"github.com/qretaio/html2json/internal/spec"
)

// Options configures an Engine. Zero values are usable.
type Options struct {
	// Regex interns compiled patterns for regex pipes. A fresh cache is
	// created when nil.
	Regex *regexcache.Cache
	// Logger receives debug traces of scope and fallback decisions.
	Logger *zap.Logger
}

// Engine evaluates specs against documents.
type Engine struct {
	regex *regexcache.Cache
	log   *zap.Logger
}

// New returns an Engine.
func New(opts Options) *Engine {
	e := &Engine{regex: opts.Regex, log: opts.Logger}
	if e.regex == nil {
		e.regex = regexcache.New()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// RegexCache returns the cache the engine compiles patterns into.
func (e *Engine) RegexCache() *regexcache.Cache { return e.regex }

// scope is the context fields are evaluated in. The zero scope is the whole
// document.
type scope struct {
	node dom.Node
}

// Extract evaluates s against doc.
//
// The result is map[string]any for object specs, []any for array specs, or a
// literal value. The first resolution or pipe error aborts the call.
func (e *Engine) Extract(doc *dom.Document, s *spec.Spec) (any, error) {
	switch s.Kind {
	case spec.KindObject:
		return e.object(doc, s.Object, scope{}, "")
	case spec.KindArray:
		return e.array(doc, s.Array, scope{}, "[]")
	case spec.KindLiteral:
		return s.Literal.Value(), nil
	default:
		return nil, fmt.Errorf("unknown spec kind %d", s.Kind)
	}
}

func (e *Engine) object(doc *dom.Document, obj *spec.ObjectSpec, in scope, path string) (map[string]any, error) {
	sc, err := e.enterScope(doc, obj.Scope, in, path)
	if err != nil {
		return nil, err
	}

	keys := slices.Sorted(maps.Keys(obj.Fields))
	entries := make([]shape.Entry, 0, len(keys))

	for _, key := range keys {
		f := obj.Fields[key]
		v, err := e.field(doc, f.Spec, sc, joinPath(path, key))
		if err != nil {
			return nil, err
		}
		entries = append(entries, shape.Entry{Key: key, Value: v, Optional: f.Optional})
	}

	return shape.Object(entries), nil
}

// enterScope applies an object's "$" selector to the incoming scope.
func (e *Engine) enterScope(doc *dom.Document, sel *spec.SelectorExpr, in scope, path string) (scope, error) {
	if sel == nil || sel.IsSelf() {
		return in, nil
	}

	n, ok, err := resolve.One(doc, *sel, in.node)
	if err != nil {
		return scope{}, fmt.Errorf("scope %q of %s: %w", sel.Raw, describe(path), err)
	}
	if !ok {
		// Fields of an unmatched scope query the whole document.
		e.log.Debug("scope selector matched nothing",
			zap.String("path", path),
			zap.String("selector", sel.Raw),
		)
		return scope{}, nil
	}
	return scope{node: n}, nil
}

func (e *Engine) field(doc *dom.Document, fs spec.FieldSpec, sc scope, path string) (any, error) {
	switch fs.Kind {
	case spec.FieldLiteral:
		return fs.Literal.Value(), nil

	case spec.FieldNested:
		return e.object(doc, fs.Nested, sc, path)

	case spec.FieldNestedArray:
		return e.array(doc, fs.Array, sc, path+"[]")

	case spec.FieldSelector:
		v, err := e.selector(doc, *fs.Selector, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", describe(path), err)
		}
		return v, nil

	case spec.FieldFallback:
		return e.fallback(doc, fs.Alternatives, sc, path)

	default:
		return nil, fmt.Errorf("%s: unknown field kind %s", describe(path), fs.Kind)
	}
}

func (e *Engine) selector(doc *dom.Document, ps spec.PipedSelector, sc scope) (any, error) {
	n, ok, err := resolve.One(doc, ps.Selector, sc.node)
	if err != nil {
		return nil, err
	}
	return pipe.Evaluate(n, ok, ps.Pipes, e.regex)
}

// fallback returns the first alternative that produced something other than
// null or a blank string.
func (e *Engine) fallback(doc *dom.Document, alts []spec.PipedSelector, sc scope, path string) (any, error) {
	for i, alt := range alts {
		v, err := e.selector(doc, alt, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: alternative %d (%q): %w", describe(path), i, alt.Selector.Raw, err)
		}
		if isBlank(v) {
			continue
		}
		e.log.Debug("fallback alternative selected",
			zap.String("path", path),
			zap.Int("alternative", i),
		)
		return v, nil
	}
	return nil, nil
}

func (e *Engine) array(doc *dom.Document, arr *spec.ArraySpec, sc scope, path string) ([]any, error) {
	item := spec.ObjectSpec{Fields: arr.Item.Fields}

	// "$" as the item selector turns the current scope into a single item.
	if arr.Item.Scope != nil && arr.Item.Scope.IsSelf() {
		obj, err := e.object(doc, &item, sc, path)
		if err != nil {
			return nil, err
		}
		return []any{obj}, nil
	}

	expr := spec.SelectorExpr{Kind: spec.Plain, Raw: "*", Query: "*"}
	if arr.Item.Scope != nil {
		expr = *arr.Item.Scope
	}

	nodes, err := resolve.All(doc, expr, sc.node)
	if err != nil {
		return nil, fmt.Errorf("items %q of %s: %w", expr.Raw, describe(path), err)
	}
	e.log.Debug("array items matched",
		zap.String("path", path),
		zap.String("selector", expr.Raw),
		zap.Int("count", len(nodes)),
	)

	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		obj, err := e.object(doc, &item, scope{node: n}, path)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func describe(path string) string {
	if path == "" {
		return "root object"
	}
	return fmt.Sprintf("field %q", path)
}
