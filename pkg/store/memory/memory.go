// Package memory provides an in-memory implementation of [store.Store].
//
// It is used when no database DSN is configured and as a lightweight backend
// in tests. All data is lost when the process exits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/freyahq/intervox/pkg/store"
)

var _ store.Store = (*Store)(nil)

type record struct {
	interview store.Interview
	entries   []store.Entry
}

// Store is an in-memory interview store safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// CreateInterview implements [store.Store].
func (s *Store) CreateInterview(_ context.Context, iv store.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv.EndedAt = time.Time{}
	iv.QuestionsAsked = 0
	s.records[iv.ID] = &record{interview: iv}
	return nil
}

// FinishInterview implements [store.Store].
func (s *Store) FinishInterview(_ context.Context, id string, endedAt time.Time, questionsAsked int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	r.interview.EndedAt = endedAt
	r.interview.QuestionsAsked = questionsAsked
	return nil
}

// AppendEntry implements [store.Store]. Appending to an unknown interview
// creates an implicit record so that transcripts survive even if the
// interview row was never written.
func (s *Store) AppendEntry(_ context.Context, interviewID string, e store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[interviewID]
	if !ok {
		r = &record{interview: store.Interview{ID: interviewID}}
		s.records[interviewID] = r
	}
	r.entries = append(r.entries, e)
	return nil
}

// History implements [store.Store].
func (s *Store) History(_ context.Context, interviewID string, limit int) ([]store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[interviewID]
	if !ok {
		return []store.Entry{}, nil
	}
	entries := r.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]store.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Interview returns the interview record for id, or [store.ErrNotFound].
func (s *Store) Interview(_ context.Context, id string) (store.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return store.Interview{}, store.ErrNotFound
	}
	return r.interview, nil
}

// Interviews returns a snapshot of every interview record. It exists for
// tests; the [store.Store] interface does not require it.
func (s *Store) Interviews() []store.Interview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Interview, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.interview)
	}
	return out
}

// Close implements [store.Store]. It is a no-op.
func (s *Store) Close() {}
