// Package pipe turns a resolved node into a field value.
//
// Evaluation has two stages. The optional source pipe (attr:<name> or void)
// decides the starting value; without one the node's text content is used.
// The remaining pipes then transform that value left to right. A null value
// passes through every transform unchanged.
//
// Values follow the JSON data model used by the engine: string, float64,
// int64 or nil.
package pipe

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qretaio/html2json/internal/dom"
	"github.com/qretaio/html2json/internal/regexcache"
	"github.com/qretaio/html2json/internal/spec"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TypeMismatchError reports a transform applied to a non-string value.
type TypeMismatchError struct {
	Pipe string
	Got  any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("pipe %s: expected string value, got %T", e.Pipe, e.Got)
}

// ConversionError reports a string that could not be parsed as a number.
type ConversionError struct {
	Input  string
	Target string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot parse %q as %s", e.Input, e.Target)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// voidTags are the HTML elements that never have content.
var voidTags = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {}, "hr": {}, "img": {},
	"input": {}, "link": {}, "meta": {}, "param": {}, "source": {}, "track": {}, "wbr": {},
}

// IsVoidTag reports whether tag names an HTML void element.
func IsVoidTag(tag string) bool {
	_, ok := voidTags[tag]
	return ok
}

// Evaluate produces the value of a selector field whose selector resolved to
// n. found=false yields nil without running any pipe.
func Evaluate(n dom.Node, found bool, pipes []spec.PipeCommand, re *regexcache.Cache) (any, error) {
	if !found {
		return nil, nil
	}

	value, rest := source(n, pipes)
	return Run(value, rest, re)
}

// Run applies transforms to value in order.
func Run(value any, pipes []spec.PipeCommand, re *regexcache.Cache) (any, error) {
	var err error
	for _, p := range pipes {
		value, err = Apply(value, p, re)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

// source returns the starting value and the pipes left to apply.
func source(n dom.Node, pipes []spec.PipeCommand) (any, []spec.PipeCommand) {
	if len(pipes) == 0 || !pipes[0].IsSource() {
		return n.Text(), pipes
	}

	first := pipes[0]
	switch first.Op {
	case spec.PipeAttr:
		v, ok := n.Attr(first.Arg)
		if !ok {
			return nil, pipes[1:]
		}
		return v, pipes[1:]
	default:
		return voidText(n), pipes[1:]
	}
}

// voidText is the text of n, or for an empty void element the trimmed text
// node that directly follows it (as in <link/>http://...).
func voidText(n dom.Node) string {
	text := n.Text()
	if text != "" || !IsVoidTag(n.Tag()) {
		return text
	}
	if s, ok := n.NextSiblingText(); ok {
		return strings.TrimSpace(s)
	}
	return text
}

// Apply runs a single transform. Source pipes are no-ops here.
func Apply(value any, p spec.PipeCommand, re *regexcache.Cache) (any, error) {
	if value == nil || p.IsSource() {
		return value, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, &TypeMismatchError{Pipe: p.String(), Got: value}
	}

	switch p.Op {
	case spec.PipeTrim:
		return strings.TrimSpace(s), nil
	case spec.PipeLower:
		return cases.Lower(language.Und).String(s), nil
	case spec.PipeUpper:
		return cases.Upper(language.Und).String(s), nil
	case spec.PipeSubstr:
		return substr(s, p.Start, p.End, p.HasEnd), nil
	case spec.PipeParseNumber, spec.PipeParseFloat:
		return parseFloat(s)
	case spec.PipeParseInt:
		return parseInt(s)
	case spec.PipeRegex:
		return applyRegex(s, p.Arg, re)
	default:
		return nil, fmt.Errorf("unsupported pipe %s", p.String())
	}
}

// substr takes the first end runes (all when !hasEnd), then drops the first
// start of those.
func substr(s string, start, end int, hasEnd bool) string {
	r := []rune(s)
	if hasEnd && end < len(r) {
		r = r[:end]
	}
	if start >= len(r) {
		return ""
	}
	return string(r[start:])
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil, &ConversionError{Input: s, Target: "number", Err: err}
	}
	// JSON has no NaN or infinities; out of range input overflows to one.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return f, nil
}

func parseInt(s string) (any, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, &ConversionError{Input: s, Target: "int", Err: err}
	}
	return i, nil
}

// applyRegex returns capture group 1 when it participated in the match,
// otherwise the whole match. No match is nil.
func applyRegex(s, pattern string, cache *regexcache.Cache) (any, error) {
	if cache == nil {
		cache = regexcache.New()
	}
	re, err := cache.Get(pattern)
	if err != nil {
		return nil, err
	}

	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil, nil
	}
	if len(loc) >= 4 && loc[2] >= 0 {
		return s[loc[2]:loc[3]], nil
	}
	return s[loc[0]:loc[1]], nil
}
