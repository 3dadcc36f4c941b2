// Package resolve maps a selector expression and a scope to document nodes.
//
// The zero dom.Node scope means "the whole document".
package resolve

import (
	"errors"
	"fmt"

	"github.com/qretaio/html2json/internal/dom"
	"github.com/qretaio/html2json/internal/spec"
)

// ErrScopeRequired is returned when a next-sibling selector ("+ sel") is used
// without a scope element to take siblings of.
var ErrScopeRequired = errors.New("next-sibling selector requires a scope")

// SelectorSyntaxError reports a selector the CSS compiler rejected.
type SelectorSyntaxError struct {
	Selector string
	Err      error
}

func (e *SelectorSyntaxError) Error() string {
	return fmt.Sprintf("invalid selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorSyntaxError) Unwrap() error { return e.Err }

// One returns the first node expr selects relative to scope.
//
// found is false when nothing matches; that is not an error.
func One(doc *dom.Document, expr spec.SelectorExpr, scope dom.Node) (n dom.Node, found bool, err error) {
	switch expr.Kind {
	case spec.SelfRef:
		return scope, !scope.IsZero(), nil

	case spec.NextSibling:
		sib, ok, err := matchingSibling(doc, expr, scope)
		if err != nil || !ok {
			return dom.Node{}, false, err
		}
		return queryOne(doc, sib, expr.Query)

	default:
		return queryOne(doc, scope, expr.Query)
	}
}

// All returns every node expr selects relative to scope, in document order.
//
// For a next-sibling selector only the first sibling whose subtree matches is
// searched.
func All(doc *dom.Document, expr spec.SelectorExpr, scope dom.Node) ([]dom.Node, error) {
	switch expr.Kind {
	case spec.SelfRef:
		if scope.IsZero() {
			return nil, nil
		}
		return []dom.Node{scope}, nil

	case spec.NextSibling:
		sib, ok, err := matchingSibling(doc, expr, scope)
		if err != nil || !ok {
			return nil, err
		}
		return queryAll(doc, sib, expr.Query)

	default:
		return queryAll(doc, scope, expr.Query)
	}
}

// matchingSibling finds the first following element sibling of scope that has
// a descendant matching expr.Query.
func matchingSibling(doc *dom.Document, expr spec.SelectorExpr, scope dom.Node) (dom.Node, bool, error) {
	if scope.IsZero() {
		return dom.Node{}, false, fmt.Errorf("%w: %q", ErrScopeRequired, expr.Raw)
	}
	if _, err := doc.Compile(expr.Query); err != nil {
		return dom.Node{}, false, &SelectorSyntaxError{Selector: expr.Query, Err: err}
	}

	for sib := range scope.FollowingSiblings() {
		_, ok, err := queryOne(doc, sib, expr.Query)
		if err != nil {
			return dom.Node{}, false, err
		}
		if ok {
			return sib, true, nil
		}
	}
	return dom.Node{}, false, nil
}

func queryOne(doc *dom.Document, scope dom.Node, query string) (dom.Node, bool, error) {
	n, ok, err := doc.QueryOne(scope, query)
	if err != nil {
		return dom.Node{}, false, &SelectorSyntaxError{Selector: query, Err: err}
	}
	return n, ok, nil
}

func queryAll(doc *dom.Document, scope dom.Node, query string) ([]dom.Node, error) {
	nodes, err := doc.QueryAll(scope, query)
	if err != nil {
		return nil, &SelectorSyntaxError{Selector: query, Err: err}
	}
	return nodes, nil
}
