// Package extracthtml wires the extraction engine to its inputs and outputs:
// loading HTML from URLs, files or stdin, reading spec files, streaming over
// directories, and the selector debug modes used by the command.
package extracthtml

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qretaio/html2json/internal/dom"
	"github.com/qretaio/html2json/internal/extract"
	"github.com/qretaio/html2json/internal/metrics"
	"github.com/qretaio/html2json/internal/spec"
)

// Extractor parses HTML and evaluates specs against it, recording one
// extraction metric per call. It is safe for concurrent use.
type Extractor struct {
	engine *extract.Engine
	log    *zap.Logger
}

// NewExtractor builds an Extractor over a new engine.
func NewExtractor(opts extract.Options) *Extractor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{engine: extract.New(opts), log: log}
}

// Extract parses html and evaluates s against the whole document.
//
// The result is map[string]any, []any, or a literal value, ready for JSON
// encoding.
func (x *Extractor) Extract(html string, s *spec.Spec) (any, error) {
	start := time.Now()

	doc, err := dom.Parse(strings.NewReader(html))
	if err != nil {
		metrics.RecordExtract(metrics.StatusParseError, time.Since(start))
		return nil, err
	}
	return x.extract(doc, s, start)
}

// ExtractDocument evaluates s against an already parsed document.
func (x *Extractor) ExtractDocument(doc *dom.Document, s *spec.Spec) (any, error) {
	return x.extract(doc, s, time.Now())
}

// ExtractJSON parses specJSON and then behaves like Extract.
func (x *Extractor) ExtractJSON(html string, specJSON []byte) (any, error) {
	s, err := spec.Parse(specJSON)
	if err != nil {
		metrics.RecordExtract(metrics.StatusSpecError, 0)
		return nil, err
	}
	return x.Extract(html, s)
}

func (x *Extractor) extract(doc *dom.Document, s *spec.Spec, start time.Time) (any, error) {
	out, err := x.engine.Extract(doc, s)
	d := time.Since(start)
	if err != nil {
		metrics.RecordExtract(metrics.StatusError, d)
		x.log.Debug("extract failed", zap.Error(err), zap.Duration("elapsed", d))
		return nil, fmt.Errorf("extract: %w", err)
	}
	metrics.RecordExtract(metrics.StatusOK, d)
	return out, nil
}
