package storage

import (
	"sort"
	"sync"
)

// DestinationStore tracks, per source project, every destination project URL
// created from it. One source project may fan out to several destinations.
type DestinationStore struct {
	urls map[int][]string
	mu   sync.RWMutex
}

func New() *DestinationStore {
	return &DestinationStore{
		urls: make(map[int][]string),
	}
}

// Add registers a destination URL for a source project; duplicates are ignored
func (s *DestinationStore) Add(sourceID int, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.urls[sourceID] {
		if u == url {
			return
		}
	}
	s.urls[sourceID] = append(s.urls[sourceID], url)
}

// Get returns the URLs of a source project in registration order
func (s *DestinationStore) Get(sourceID int) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls, exists := s.urls[sourceID]
	if !exists {
		return nil, false
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out, true
}

// SourceIDs returns every source project with at least one destination, sorted
func (s *DestinationStore) SourceIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.urls))
	for id := range s.urls {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
