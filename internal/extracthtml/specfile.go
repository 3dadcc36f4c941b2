package extracthtml

import (
	"fmt"
	"io"
	"os"

	"github.com/qretaio/html2json/internal/spec"
)

// DefaultMaxSpecBytes caps a spec file.
const DefaultMaxSpecBytes = 1 << 20

// LoadSpecFile reads and parses a JSON spec file. maxBytes <= 0 uses
// DefaultMaxSpecBytes.
//
// Parse failures are returned as *spec.ParseError so callers can tell a bad
// spec apart from an unreadable file.
func LoadSpecFile(path string, maxBytes int64) (*spec.Spec, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSpecBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("spec file %s: %w (%d bytes)", path, ErrTooLarge, maxBytes)
	}

	return spec.Parse(b)
}
