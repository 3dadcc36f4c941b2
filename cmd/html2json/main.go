// Command html2json extracts JSON from HTML using a declarative spec.
//
// Usage (file or URL):
//
//	html2json page.html spec.json
//	html2json "https://example.com/page" spec.json
//
// Usage (stdin):
//
//	cat page.html | html2json spec.json
//
// Usage (directory mode, one JSON array over every file):
//
//	html2json -dir ./pages spec.json
//
// Debug (print outer HTML or text of CSS / XPath matches):
//
//	html2json -selector "div#firmInfo" page.html
//	cat page.html | html2json -xpath "//table//tr" -text
//
// Results can also be written to a database with -sink and -dsn. Every flag
// has an HTML2JSON_* environment counterpart; flags win.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/qretaio/html2json/internal/config"
	"github.com/qretaio/html2json/internal/extract"
	"github.com/qretaio/html2json/internal/extracthtml"
	"github.com/qretaio/html2json/internal/logging"
	"github.com/qretaio/html2json/internal/metrics"
	"github.com/qretaio/html2json/internal/metrics/datadog"
	"github.com/qretaio/html2json/internal/metrics/prompush"
	"github.com/qretaio/html2json/internal/regexcache"
	"github.com/qretaio/html2json/internal/sink"
	_ "github.com/qretaio/html2json/internal/sink/all"
	"github.com/qretaio/html2json/internal/spec"
)

// sinkBatch is how many directory-mode results are buffered per insert.
const sinkBatch = 500

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage, config and spec errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("html2json", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: html2json [flags] [<input>] <spec.json>\n       html2json -dir <dir> [flags] <spec.json>\n       html2json -selector|-xpath <expr> [-text] [<input>]\n\nflags:\n")
		fs.PrintDefaults()
	}

	dirFlag := fs.String("dir", "", "Directory of HTML files to extract (one JSON array over all files)")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	debugXPath := fs.String("xpath", "", "Debug: XPath expression to print matches for (not JSON)")
	onlyText := fs.Bool("text", false, "Debug: print text of -selector/-xpath matches instead of HTML")
	pretty := fs.Bool("pretty", false, "Indent JSON output")
	timeout := fs.Duration("timeout", cfg.Timeout, "Timeout for URL fetches")
	sinkKind := fs.String("sink", cfg.Sink.Kind, "Also store results in a database: sqlite, postgres or mssql")
	dsn := fs.String("dsn", cfg.Sink.DSN, "Data source name for -sink")
	table := fs.String("table", cfg.Sink.Table, "Table for -sink")
	workers := fs.Int("workers", cfg.Workers, "Concurrent extractions in -dir mode")
	verbose := fs.Bool("v", false, "Verbose (debug) logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.Timeout = *timeout
	cfg.Sink.Kind = *sinkKind
	cfg.Sink.DSN = *dsn
	cfg.Sink.Table = *table
	cfg.Workers = *workers
	if *verbose {
		cfg.Log.Level = "debug"
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return 2
	}

	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development, Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	stopMetrics := setupMetrics(ctx, cfg, log)
	defer stopMetrics()

	loader := extracthtml.NewLoader(httpClient, cfg.Timeout,
		extracthtml.WithMaxBytes(cfg.MaxHTMLBytes),
		extracthtml.WithUserAgent(cfg.UserAgent),
	)
	pos := fs.Args()

	// Debug modes need HTML input but no spec.
	if *debugSelector != "" || *debugXPath != "" {
		if len(pos) > 1 {
			fs.Usage()
			return 2
		}
		html, err := loader.Load(ctx, extracthtml.Input{Source: argOr(pos, 0, "-"), Stdin: stdin})
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if *debugSelector != "" {
			err = extracthtml.DebugPrintSelector(stdout, html, *debugSelector, *onlyText)
		} else {
			err = extracthtml.DebugPrintXPath(stdout, html, *debugXPath, *onlyText)
		}
		if err != nil {
			fmt.Fprintf(stderr, "debug: %v\n", err)
			return 1
		}
		return 0
	}

	var input, specPath string
	switch {
	case *dirFlag != "" && len(pos) == 1:
		specPath = pos[0]
	case *dirFlag == "" && len(pos) == 1:
		input, specPath = "-", pos[0]
	case *dirFlag == "" && len(pos) == 2:
		input, specPath = pos[0], pos[1]
	default:
		fs.Usage()
		return 2
	}

	s, err := extracthtml.LoadSpecFile(specPath, cfg.MaxSpecBytes)
	if err != nil {
		fmt.Fprintf(stderr, "load spec: %v\n", err)
		if isSpecError(err) {
			return 2
		}
		return 1
	}

	x := extracthtml.NewExtractor(extract.Options{
		Regex:  regexcache.New(regexcache.WithSizeLimit(cfg.RegexSizeLimit)),
		Logger: log,
	})

	var out sink.Sink
	if cfg.Sink.Kind != "" {
		out, err = openSink(ctx, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "sink: %v\n", err)
			log.Error("open sink failed", zap.String("kind", cfg.Sink.Kind), zap.Error(err))
			return 1
		}
		defer out.Close()
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	if *pretty {
		enc.SetIndent("", "  ")
	}

	start := time.Now()
	if *dirFlag != "" {
		return runDir(ctx, x, loader, out, s, *dirFlag, cfg.Workers, stdout, stderr, enc, log, start)
	}

	html, err := loader.Load(ctx, extracthtml.Input{Source: input, Stdin: stdin})
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		log.Error("load failed", zap.String("input", input), zap.Error(err))
		return 1
	}

	result, err := x.Extract(html, s)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		log.Error("extract failed", zap.String("input", input), zap.Error(err))
		return 1
	}

	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}

	if out != nil {
		if _, err := out.Insert(ctx, []sink.Record{{Source: input, ExtractedAt: start, Payload: result}}); err != nil {
			fmt.Fprintf(stderr, "sink: %v\n", err)
			log.Error("sink insert failed", zap.Error(err))
			return 1
		}
	}

	log.Info("extracted",
		zap.String("input", input),
		zap.Int("html_bytes", len(html)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return 0
}

func runDir(
	ctx context.Context,
	x *extracthtml.Extractor,
	loader *extracthtml.Loader,
	out sink.Sink,
	s *spec.Spec,
	dir string,
	workers int,
	stdout, stderr io.Writer,
	enc *json.Encoder,
	log *zap.Logger,
	start time.Time,
) int {
	var (
		pending []sink.Record
		emitted int
	)
	flush := func() error {
		if out == nil || len(pending) == 0 {
			return nil
		}
		_, err := out.Insert(ctx, pending)
		pending = pending[:0]
		return err
	}

	err := x.StreamFromDir(ctx, stdout, dir, s, enc, extracthtml.DirOptions{
		Workers: workers,
		Loader:  loader,
		OnResult: func(file string, v any) error {
			emitted++
			if out == nil {
				return nil
			}
			pending = append(pending, sink.Record{Source: file, ExtractedAt: time.Now(), Payload: v})
			if len(pending) >= sinkBatch {
				return flush()
			}
			return nil
		},
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		fmt.Fprintf(stderr, "dir extract: %v\n", err)
		log.Error("dir extract failed", zap.String("dir", dir), zap.Error(err))
		return 1
	}

	log.Info("dir extracted",
		zap.String("dir", dir),
		zap.Int("results", emitted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return 0
}

func openSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	s, err := sink.New(ctx, sink.Config{Kind: cfg.Sink.Kind, DSN: cfg.Sink.DSN, Table: cfg.Sink.Table})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureTable(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// setupMetrics installs the configured backend and returns its shutdown
// func. Backend failures only disable metrics.
func setupMetrics(ctx context.Context, cfg *config.Config, log *zap.Logger) func() {
	backend := strings.ToLower(cfg.Metrics.Backend)
	switch backend {
	case "pushgateway", "prom", "prometheus":
		b, err := prompush.New(prompush.Options{URL: cfg.Metrics.PushgatewayURL, Job: cfg.Metrics.Job})
		if err != nil {
			log.Warn("metrics: failed to init pushgateway backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Debug("metrics enabled", zap.String("backend", backend), zap.String("url", cfg.Metrics.PushgatewayURL))
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: flush error", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		// The backend flushes on its own ticker; Close submits the tail.
		tags := datadog.ParseTagsCSV(cfg.Metrics.Tags)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Metrics.Job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Warn("metrics: failed to init datadog backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Debug("metrics enabled", zap.String("backend", backend), zap.Strings("tags", tags))
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush error", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	default:
		log.Debug("metrics disabled", zap.String("backend", backend))
		return func() {}
	}
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

// isSpecError reports whether err came from spec parsing.
func isSpecError(err error) bool {
	var pe *spec.ParseError
	return errors.As(err, &pe)
}
