package model

import "sync"

// URLSet is a set of normalized URLs safe for concurrent use.
// Every URL transitions into the set exactly once: Add is the single
// atomic check-and-insert operation.
type URLSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{urls: make(map[string]struct{})}
}

// Add inserts rawURL and reports whether it was not present before.
func (s *URLSet) Add(rawURL string) bool {
	key := NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[key]; ok {
		return false
	}
	s.urls[key] = struct{}{}
	return true
}

// Contains reports whether rawURL is in the set.
func (s *URLSet) Contains(rawURL string) bool {
	key := NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.urls[key]
	return ok
}

// Len returns the number of URLs in the set.
func (s *URLSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}
