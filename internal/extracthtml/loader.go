package extracthtml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/qretaio/html2json/internal/metrics"
)

// DefaultMaxBytes caps a single HTML input.
const DefaultMaxBytes = 100 << 20

// ErrTooLarge is returned when an input exceeds the loader's byte cap.
var ErrTooLarge = errors.New("input exceeds size limit")

// Input describes where HTML should come from.
type Input struct {
	// Source is an http(s) URL, a file path, or "-" for stdin. An empty
	// Source also reads stdin.
	Source string

	// Stdin is used for "-" and empty sources. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Loader fetches or reads HTML with a consistent timeout and size policy.
// Every input is returned as UTF-8.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithMaxBytes caps input size. Non-positive values keep the default.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header for HTTP fetches.
func WithUserAgent(ua string) LoaderOption {
	return func(l *Loader) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
func NewLoader(client *http.Client, timeout time.Duration, opts ...LoaderOption) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	l := &Loader{
		client:    client,
		timeout:   timeout,
		maxBytes:  DefaultMaxBytes,
		userAgent: "html2json/1.0",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the HTML for input.
//
// URLs must use http or https; any other scheme is rejected rather than
// being treated as a path. On non-2xx HTTP responses, Load returns an error
// that includes the status code and up to 4KB of the response body.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	src := strings.TrimSpace(input.Source)

	switch {
	case src == "" || src == "-":
		if input.Stdin == nil {
			return "", nil
		}
		b, err := l.readCapped(input.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return toUTF8(b, "")

	case strings.Contains(src, "://"):
		u, err := url.Parse(src)
		if err != nil {
			return "", fmt.Errorf("parse url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
		}
		return l.fetch(ctx, u.String())

	default:
		f, err := os.Open(src)
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		b, err := l.readCapped(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", src, err)
		}
		return toUTF8(b, "")
	}
}

func (l *Loader) fetch(ctx context.Context, target string) (out string, err error) {
	start := time.Now()
	status := 0
	var n int64
	defer func() {
		metrics.RecordHTTP(status, time.Since(start), n, err != nil)
	}()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := l.readCapped(resp.Body)
	n = int64(len(b))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return toUTF8(b, resp.Header.Get("Content-Type"))
}

// readCapped reads r fully, failing with ErrTooLarge past maxBytes.
func (l *Loader) readCapped(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > l.maxBytes {
		return b[:l.maxBytes], fmt.Errorf("%w (%d bytes)", ErrTooLarge, l.maxBytes)
	}
	return b, nil
}

// toUTF8 decodes b using, in order: a BOM, the Content-Type charset, a
// <meta> declaration, and finally statistical detection for bytes that are
// not valid UTF-8.
func toUTF8(b []byte, contentType string) (string, error) {
	enc, name, certain := charset.DetermineEncoding(b, contentType)
	// windows-1252 without certainty is the package's fallback guess.
	if !certain && name == "windows-1252" {
		if utf8.Valid(b) {
			return string(b), nil
		}
		if res, err := chardet.NewHtmlDetector().DetectBest(b); err == nil && res != nil {
			if e, n := charset.Lookup(res.Charset); e != nil {
				enc, name = e, n
			}
		}
	}
	if name == "utf-8" {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}
