package buildlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and embedded use.
// It enforces the same retention caps as the SQLite store.
type MemoryStore struct {
	caps Caps

	mu      sync.RWMutex
	entries []*Entry
	closed  bool
}

// NewMemoryStore creates an in-memory build log store.
func NewMemoryStore(caps Caps) *MemoryStore {
	return &MemoryStore{caps: caps}
}

// LogVertexBuild implements Store.
func (s *MemoryStore) LogVertexBuild(_ context.Context, e *Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if e.FlowID == "" || e.VertexID == "" || e.BuildID == "" {
		return 0, ErrInvalidEntry
	}

	stored := *e
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}
	s.entries = append(s.entries, &stored)

	before := len(s.entries)
	s.pruneLocked(stored.FlowID, stored.VertexID)
	return int64(before - len(s.entries)), nil
}

// pruneLocked drops entries beyond the per-vertex and global caps,
// keeping the most recent by (timestamp, build id).
func (s *MemoryStore) pruneLocked(flowID, vertexID string) {
	if s.caps.MaxBuildsPerVertex > 0 {
		s.dropOldest(func(e *Entry) bool {
			return e.FlowID == flowID && e.VertexID == vertexID
		}, s.caps.MaxBuildsPerVertex)
	}
	if s.caps.MaxBuildsToKeep > 0 {
		s.dropOldest(func(e *Entry) bool {
			return e.FlowID == flowID
		}, s.caps.MaxBuildsToKeep)
	}
}

func (s *MemoryStore) dropOldest(match func(*Entry) bool, keep int) {
	var matching []*Entry
	for _, e := range s.entries {
		if match(e) {
			matching = append(matching, e)
		}
	}
	excess := len(matching) - keep
	if excess <= 0 {
		return
	}

	sortNewestFirst(matching)
	doomed := make(map[*Entry]bool, excess)
	for _, e := range matching[keep:] {
		doomed[e] = true
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !doomed[e] {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// ListBuilds implements Store.
func (s *MemoryStore) ListBuilds(_ context.Context, flowID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []*Entry
	for _, e := range s.entries {
		if e.FlowID == flowID {
			copied := *e
			out = append(out, &copied)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBuilds implements Store.
func (s *MemoryStore) DeleteBuilds(_ context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.FlowID != flowID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortNewestFirst(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].BuildID > entries[j].BuildID
	})
}
