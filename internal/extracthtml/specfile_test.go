package extracthtml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/qretaio/html2json/internal/spec"
)

// TestLoadSpecFile_HappyPath verifies a file on disk becomes a parsed spec.
func TestLoadSpecFile_HappyPath(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "spec.json")
	if err := os.WriteFile(p, []byte(`{"title":"h1","links":[{"$":"a","href":"$ | attr:href"}]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadSpecFile(p, 0)
	if err != nil {
		t.Fatalf("LoadSpecFile: %v", err)
	}
	if s.Kind != spec.KindObject || len(s.Object.Fields) != 2 {
		t.Fatalf("unexpected spec: %#v", s)
	}
}

// TestLoadSpecFile_Errors separates I/O, size, and parse failures.
func TestLoadSpecFile_Errors(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()

	if _, err := LoadSpecFile(filepath.Join(tmp, "missing.json"), 0); err == nil {
		t.Fatalf("expected error for missing file")
	}

	big := filepath.Join(tmp, "big.json")
	if err := os.WriteFile(big, []byte(`{"title":"h1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSpecFile(big, 4); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	bad := filepath.Join(tmp, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"x":"h1 | bogus"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadSpecFile(bad, 0)
	var pe *spec.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *spec.ParseError, got %T %v", err, err)
	}
}
