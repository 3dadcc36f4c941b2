// Package html2json extracts structured JSON values from HTML documents
// using a declarative JSON spec.
//
// A spec mirrors the shape of the output: object keys become fields, string
// values are CSS selectors followed by pipes, and single-element arrays
// repeat their template for every element matched by "$".
//
//	out, err := html2json.Extract(page, []byte(`{
//		"title": "h1",
//		"links": [{"$": "a[href]", "url": "$ | attr:href"}]
//	}`))
//
// Callers that run many extractions should build one Extractor and reuse it
// so compiled regular expressions are shared.
package html2json

import (
	"go.uber.org/zap"

	"github.com/qretaio/html2json/internal/extract"
	"github.com/qretaio/html2json/internal/extracthtml"
	"github.com/qretaio/html2json/internal/regexcache"
	"github.com/qretaio/html2json/internal/spec"
)

// Spec is a parsed extraction spec. It is immutable and may be shared.
type Spec = spec.Spec

// ParseError reports a malformed spec.
type ParseError = spec.ParseError

// ParseSpec validates specJSON and returns the parsed spec.
func ParseSpec(specJSON []byte) (*Spec, error) {
	return spec.Parse(specJSON)
}

// Option configures an Extractor.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	regexSizeLimit int
}

// WithLogger routes engine debug traces to log.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithRegexSizeLimit caps the compiled size of patterns used by regex pipes.
func WithRegexSizeLimit(n int) Option {
	return func(o *options) { o.regexSizeLimit = n }
}

// Extractor evaluates specs against HTML. It is safe for concurrent use.
type Extractor struct {
	x *extracthtml.Extractor
}

// NewExtractor returns an Extractor with its own regex cache.
func NewExtractor(opts ...Option) *Extractor {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var rc []regexcache.Option
	if o.regexSizeLimit > 0 {
		rc = append(rc, regexcache.WithSizeLimit(o.regexSizeLimit))
	}
	return &Extractor{x: extracthtml.NewExtractor(extract.Options{
		Regex:  regexcache.New(rc...),
		Logger: o.logger,
	})}
}

// Extract evaluates a parsed spec against html.
func (e *Extractor) Extract(html string, s *Spec) (any, error) {
	return e.x.Extract(html, s)
}

// ExtractJSON parses specJSON and evaluates it against html.
func (e *Extractor) ExtractJSON(html string, specJSON []byte) (any, error) {
	return e.x.ExtractJSON(html, specJSON)
}

var defaultExtractor = NewExtractor()

// Extract parses specJSON and evaluates it against html with a shared
// default Extractor.
//
// The result is a map[string]any for object specs, a []any for array specs,
// or the literal value of a quoted-string spec.
func Extract(html string, specJSON []byte) (any, error) {
	return defaultExtractor.ExtractJSON(html, specJSON)
}
