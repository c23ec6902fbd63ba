// Package memory provides an in-memory Store for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// Store keeps records in a map guarded by a mutex. The single lock
// serializes upserts per key, matching the durability-free subset of
// the Store contract.
type Store struct {
	mu      sync.RWMutex
	records map[string]pipeline.Record
	clock   pipeline.Clock
}

// New creates an empty Store.
func New(clock pipeline.Clock) *Store {
	return &Store{
		records: make(map[string]pipeline.Record),
		clock:   clock,
	}
}

// Upsert inserts or updates by unique key, comparing content hashes to
// detect no-op writes.
func (s *Store) Upsert(_ context.Context, rec pipeline.Record) (pipeline.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, ok := s.records[rec.Key]
	if !ok {
		rec.FirstSeen = now
		rec.LastUpdated = now
		s.records[rec.Key] = rec
		return pipeline.OutcomeCreated, nil
	}
	if existing.ContentHash == rec.ContentHash {
		return pipeline.OutcomeUnchanged, nil
	}
	rec.FirstSeen = existing.FirstSeen
	rec.LastUpdated = now
	s.records[rec.Key] = rec
	return pipeline.OutcomeUpdated, nil
}

// Get returns the record for key if present.
func (s *Store) Get(_ context.Context, key string) (pipeline.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

// List streams every record through fn. Each call iterates a fresh
// snapshot, so List is restartable.
func (s *Store) List(_ context.Context, fn func(pipeline.Record) error) error {
	s.mu.RLock()
	snapshot := make([]pipeline.Record, 0, len(s.records))
	for _, rec := range s.records {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}
