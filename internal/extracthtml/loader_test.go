package extracthtml

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// TestLoader_Stdin verifies stdin input is read and returned as string.
//
// This is the most common mode when piping HTML from another program.
func TestLoader_Stdin(t *testing.T) {
	t.Parallel()

	l := NewLoader(http.DefaultClient, 1*time.Second)
	for _, src := range []string{"", "-"} {
		html, err := l.Load(context.Background(), Input{
			Source: src,
			Stdin:  bytes.NewBufferString("<p>x</p>"),
		})
		if err != nil {
			t.Fatalf("Load(%q): %v", src, err)
		}
		if html != "<p>x</p>" {
			t.Fatalf("unexpected html: %q", html)
		}
	}
}

// TestLoader_File verifies a plain path is read from disk.
func TestLoader_File(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(p, []byte("<h1>Hi</h1>"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil, time.Second)
	html, err := l.Load(context.Background(), Input{Source: p})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<h1>Hi</h1>" {
		t.Fatalf("unexpected html: %q", html)
	}

	if _, err := l.Load(context.Background(), Input{Source: filepath.Join(t.TempDir(), "missing.html")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// TestLoader_URL_Non2xx verifies we include status code and a body snippet.
// This dramatically improves debuggability when scraping.
func TestLoader_URL_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(&http.Client{Timeout: 2 * time.Second}, 2*time.Second)
	_, err := l.Load(context.Background(), Input{Source: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "http status 403") || !strings.Contains(msg, "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoader_URL_UserAgentAndCharset verifies the configured User-Agent is
// sent and a Latin-1 body declared in Content-Type is decoded to UTF-8.
func TestLoader_URL_UserAgentAndCharset(t *testing.T) {
	t.Parallel()

	latin1, err := charmap.ISO8859_1.NewEncoder().String("<p>café</p>")
	if err != nil {
		t.Fatal(err)
	}

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte(latin1))
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(srv.Client(), 2*time.Second, WithUserAgent("test-agent/2"))
	html, err := l.Load(context.Background(), Input{Source: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotUA != "test-agent/2" {
		t.Fatalf("unexpected User-Agent %q", gotUA)
	}
	if html != "<p>café</p>" {
		t.Fatalf("charset not decoded: %q", html)
	}
}

// TestLoader_MetaCharset verifies a <meta charset> declaration is honored for
// file input.
func TestLoader_MetaCharset(t *testing.T) {
	t.Parallel()

	body, err := charmap.Windows1252.NewEncoder().String(`<meta charset="windows-1252"><p>naïve</p>`)
	if err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil, time.Second)
	html, err := l.Load(context.Background(), Input{Stdin: strings.NewReader(body)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(html, "naïve") {
		t.Fatalf("meta charset not honored: %q", html)
	}
}

// TestLoader_RejectsScheme verifies non-http URLs are refused instead of
// being opened as paths.
func TestLoader_RejectsScheme(t *testing.T) {
	t.Parallel()

	l := NewLoader(nil, time.Second)
	for _, src := range []string{"ftp://example.com/x", "file:///etc/passwd"} {
		_, err := l.Load(context.Background(), Input{Source: src})
		if err == nil || !strings.Contains(err.Error(), "unsupported url scheme") {
			t.Fatalf("Load(%q): expected scheme error, got %v", src, err)
		}
	}
}

// TestLoader_SizeCap verifies oversized inputs fail with ErrTooLarge.
func TestLoader_SizeCap(t *testing.T) {
	t.Parallel()

	l := NewLoader(nil, time.Second, WithMaxBytes(8))
	_, err := l.Load(context.Background(), Input{Stdin: strings.NewReader("<p>0123456789</p>")})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	html, err := l.Load(context.Background(), Input{Stdin: strings.NewReader("<p>x</p>")})
	if err != nil || html != "<p>x</p>" {
		t.Fatalf("exact-size input should load: %q %v", html, err)
	}
}
