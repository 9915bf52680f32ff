package storage

import (
	"sync"
	"testing"
)

func TestDestinationStore(t *testing.T) {
	s := New()
	s.Add(1, "https://sly/projects/5/datasets")
	s.Add(1, "https://sly/projects/6/datasets")
	s.Add(1, "https://sly/projects/5/datasets")
	s.Add(2, "https://sly/projects/7/datasets")

	urls, ok := s.Get(1)
	if !ok {
		t.Fatal("Expected source 1 to be registered")
	}
	if len(urls) != 2 || urls[1] != "https://sly/projects/6/datasets" {
		t.Errorf("Expected 2 ordered urls, got %v", urls)
	}

	urls[0] = "mutated"
	again, _ := s.Get(1)
	if again[0] == "mutated" {
		t.Error("Get returned the internal slice")
	}

	ids := s.SourceIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("Expected [1 2], got %v", ids)
	}

	if _, ok := s.Get(3); ok {
		t.Error("Expected unknown source to be missing")
	}
}

func TestDestinationStoreConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(i%5, "u")
		}(i)
	}
	wg.Wait()
	if len(s.SourceIDs()) != 5 {
		t.Errorf("Expected 5 sources, got %d", len(s.SourceIDs()))
	}
}
