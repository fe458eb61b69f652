// Package pattern compiles the regular expressions stored on rules and client
// matching patterns. Patterns are validated before they are persisted and compiled
// at most once per process.
package pattern

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/Veraticus/the-books-must-balance/internal/common"
)

const (
	// MaxPatternLength bounds the size of a stored pattern.
	MaxPatternLength = 512
	// maxEntries bounds the number of compiled patterns kept in a cache.
	maxEntries = 4096
)

type entry struct {
	re  *regexp.Regexp
	err error
}

// Cache holds compiled case-insensitive patterns keyed by their source text.
// Invalid patterns are cached as well so they are only reported once.
type Cache struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewCache creates an empty pattern cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Validate checks that pattern is non-empty, within bounds, and compiles.
func Validate(pattern string) error {
	_, err := compile(pattern)
	return err
}

func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern: %w", common.ErrInvalidPattern)
	}
	if len(pattern) > MaxPatternLength {
		return nil, fmt.Errorf("pattern longer than %d bytes: %w", MaxPatternLength, common.ErrInvalidPattern)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidPattern, err)
	}
	return re, nil
}

// Compile returns the compiled form of pattern, compiling it on first use.
func (c *Cache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	e, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return e.re, e.err
	}

	re, err := compile(pattern)

	c.mu.Lock()
	if len(c.entries) >= maxEntries {
		c.entries = make(map[string]entry)
	}
	c.entries[pattern] = entry{re: re, err: err}
	c.mu.Unlock()

	return re, err
}

// MatchString reports whether pattern matches text. Matching time is linear in
// the length of text.
func (c *Cache) MatchString(pattern, text string) (bool, error) {
	re, err := c.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
