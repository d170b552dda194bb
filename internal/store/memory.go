package store

import (
	"context"
	"sync"
)

// MemorySet is the default in-process ProcessedSet. State does not survive a
// restart; the pipeline's subject lookup covers that case.
type MemorySet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewMemorySet() *MemorySet {
	return &MemorySet{ids: make(map[string]struct{})}
}

func (s *MemorySet) Contains(_ context.Context, transcriptID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[transcriptID]
	return ok, nil
}

func (s *MemorySet) AddAll(_ context.Context, transcriptIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range transcriptIDs {
		s.ids[id] = struct{}{}
	}
	return nil
}
