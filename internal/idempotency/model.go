// Package idempotency stores responses of non-idempotent requests under a
// client-supplied key, so a retried project creation returns the original
// result instead of creating a duplicate.
package idempotency

import (
	"errors"
	"time"
)

// MaxKeyLength bounds client-supplied keys.
const MaxKeyLength = 64

var (
	// ErrKeyNotFound is returned when no record exists under a key.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when storing a duplicate key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when a key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length")
)

// Record is a cached response held under an idempotency key.
type Record struct {
	Key            string    `json:"key"`
	Method         string    `json:"method"`
	Route          string    `json:"route"`
	ResponseStatus int       `json:"response_status"`
	ResponseBody   string    `json:"response_body"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidateKey rejects empty or oversized keys.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return ErrInvalidKey
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	}
	return nil
}

// Repository persists idempotency records.
type Repository interface {
	// Get returns the record stored under key, or ErrKeyNotFound.
	Get(key string) (*Record, error)

	// Store saves a new record, failing with ErrKeyExists on duplicates.
	Store(rec *Record) error

	// DeleteOlderThan drops records past the given age and reports how
	// many were removed.
	DeleteOlderThan(age time.Duration) (int64, error)
}
