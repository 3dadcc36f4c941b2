// Package regexcache interns compiled regular expressions by pattern text.
//
// A Cache is owned by whoever constructs it (normally one extraction engine)
// and may be shared across goroutines. Lookups take a read lock; inserts take
// the write lock. If a panic escapes while the write lock is held the cache is
// marked poisoned and every later call returns a *CacheError.
package regexcache

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"sync"
)

// DefaultSizeLimit bounds the number of instructions of a compiled pattern.
const DefaultSizeLimit = 1_000_000

// CompileError reports an invalid or oversized pattern.
type CompileError struct {
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("regex %q: %v", e.Pattern, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// CacheError reports that the cache is unusable.
type CacheError struct {
	Msg string
}

func (e *CacheError) Error() string { return "regex cache: " + e.Msg }

// ErrTooLarge is wrapped by CompileError when a pattern exceeds the size limit.
var ErrTooLarge = errors.New("compiled program exceeds size limit")

// Cache maps pattern text to a compiled *regexp.Regexp.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*regexp.Regexp
	poisoned bool

	sizeLimit int

	// onInsert runs under the write lock; tests use it to inject panics.
	onInsert func(pattern string)
}

// Option configures a Cache.
type Option func(*Cache)

// WithSizeLimit overrides DefaultSizeLimit. Values <= 0 keep the default.
func WithSizeLimit(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.sizeLimit = n
		}
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]*regexp.Regexp),
		sizeLimit: DefaultSizeLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the compiled form of pattern, compiling and inserting it on the
// first request.
func (c *Cache) Get(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	if c.poisoned {
		c.mu.RUnlock()
		return nil, &CacheError{Msg: "poisoned by an earlier panic"}
	}
	re, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := c.compile(pattern)
	if err != nil {
		return nil, err
	}
	return c.insert(pattern, re)
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Poisoned reports whether the cache has been disabled by a panic.
func (c *Cache) Poisoned() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.poisoned
}

func (c *Cache) insert(pattern string, re *regexp.Regexp) (out *regexp.Regexp, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			out, err = nil, &CacheError{Msg: fmt.Sprintf("panic during insert: %v", r)}
		}
	}()

	if c.poisoned {
		return nil, &CacheError{Msg: "poisoned by an earlier panic"}
	}
	// Another goroutine may have won the race; keep the first entry.
	if existing, ok := c.entries[pattern]; ok {
		return existing, nil
	}
	if c.onInsert != nil {
		c.onInsert(pattern)
	}
	c.entries[pattern] = re
	return re, nil
}

// compile checks the program size before handing the pattern to regexp.
func (c *Cache) compile(pattern string) (*regexp.Regexp, error) {
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	prog, err := syntax.Compile(parsed.Simplify())
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	if len(prog.Inst) > c.sizeLimit {
		return nil, &CompileError{
			Pattern: pattern,
			Err:     fmt.Errorf("%w (%d > %d)", ErrTooLarge, len(prog.Inst), c.sizeLimit),
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	return re, nil
}
