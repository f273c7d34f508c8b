package sink

import (
	"sync"

	"github.com/nao1215/spider/internal/model"
)

type entryState int

const (
	stateInFlight entryState = iota
	stateDone
	stateFailed
)

// DownloadedSet tracks the image URLs of one crawl run.
//
// Besides the URLs that were saved, it remembers URLs currently being
// fetched by some worker (claims) and URLs whose write failed. Claim is
// the single atomic check-and-insert step, so two workers can never both
// fetch the same image.
type DownloadedSet struct {
	mu      sync.Mutex
	entries map[string]entryState
	done    int
}

// NewDownloadedSet creates an empty set.
func NewDownloadedSet() *DownloadedSet {
	return &DownloadedSet{entries: make(map[string]entryState)}
}

// Claim reserves rawURL for the caller. It returns nil when the caller now
// owns the URL and must finish with Commit, Release or Fail.
func (s *DownloadedSet) Claim(rawURL string) error {
	key := model.NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.entries[key]; ok {
		if state == stateFailed {
			return ErrPreviouslyFailed
		}
		return ErrAlreadyDownloaded
	}
	s.entries[key] = stateInFlight
	return nil
}

// Release drops the claim on rawURL, leaving the set as it was before
// Claim.
func (s *DownloadedSet) Release(rawURL string) {
	key := model.NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[key] == stateInFlight {
		delete(s.entries, key)
	}
}

// Commit marks rawURL as downloaded.
func (s *DownloadedSet) Commit(rawURL string) {
	key := model.NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[key] != stateDone {
		s.entries[key] = stateDone
		s.done++
	}
}

// Fail marks rawURL as failed for the rest of the run.
// A failed URL is not counted as downloaded.
func (s *DownloadedSet) Fail(rawURL string) {
	key := model.NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[key] == stateDone {
		return
	}
	s.entries[key] = stateFailed
}

// Contains reports whether rawURL was downloaded successfully.
func (s *DownloadedSet) Contains(rawURL string) bool {
	key := model.NormalizeURL(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entries[key]
	return ok && state == stateDone
}

// Len returns the number of images downloaded successfully.
func (s *DownloadedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
