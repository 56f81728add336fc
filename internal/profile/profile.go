// Package profile holds the display name attached to uploads.
package profile

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted display name, in runes.
const MaxNameLength = 64

// Store keeps the current display name. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	name     string
	fallback string
}

// NewStore returns a Store starting with name. An empty name reads as
// "Anonymous".
func NewStore(name string) *Store {
	s := &Store{fallback: "Anonymous"}
	_ = s.Set(name)
	return s
}

// DisplayName returns the current name, or the fallback when none is set.
func (s *Store) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.name == "" {
		return s.fallback
	}
	return s.name
}

// Set replaces the display name. Surrounding whitespace is trimmed and an
// empty name resets to the fallback.
func (s *Store) Set(name string) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("display name longer than %d characters", MaxNameLength)
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}
