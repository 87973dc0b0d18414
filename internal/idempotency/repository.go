package idempotency

import (
	"sync"
	"time"
)

// InMemoryRepository is a mutex-guarded map store. Records are stored and
// returned by value so callers cannot mutate shared state.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryRepository creates an empty in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]Record)}
}

// Get returns the record stored under key, or ErrKeyNotFound.
func (r *InMemoryRepository) Get(key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &rec, nil
}

// Store saves a new record, failing with ErrKeyExists on duplicates. A
// zero CreatedAt is filled with the current time.
func (r *InMemoryRepository) Store(rec *Record) error {
	if err := ValidateKey(rec.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.Key]; ok {
		return ErrKeyExists
	}
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.records[rec.Key] = stored
	return nil
}

// DeleteOlderThan drops records past the given age and reports how many
// were removed.
func (r *InMemoryRepository) DeleteOlderThan(age time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var deleted int64
	for key, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}
