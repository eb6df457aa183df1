// Package store holds held APPEND messages pending operator review.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"quarantine-proxy/internal/message"
)

// Disposition is the review state of a held record.
type Disposition string

const (
	Held     Disposition = "held"
	Approved Disposition = "approved"
	Deleted  Disposition = "deleted"
)

// ErrNotFound is returned when a record ID has no matching entry.
var ErrNotFound = errors.New("store: record not found")

// ErrNotHeld is returned when a disposition transition is attempted on a
// record that has already left the held state. Once a record has been
// approved or deleted, it cannot be transitioned again.
var ErrNotHeld = errors.New("store: record is not held")

// Record is a single quarantined message and its review state.
type Record struct {
	ID        string
	Meta      message.Metadata
	Content   []byte
	Status    Disposition
	CreatedAt time.Time
}

// Store is an in-memory, concurrency-safe collection of held records.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Insert adds a new held record built from content and meta, and returns
// it. The record is always created in the Held state.
func (s *Store) Insert(content []byte, meta message.Metadata) *Record {
	rec := &Record{
		ID:        uuid.New().String(),
		Meta:      meta,
		Content:   content,
		Status:    Held,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()

	return rec
}

// Get returns the record with the given ID, or ErrNotFound.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List returns a snapshot of all records, sorted by none in particular;
// callers that need ordering should sort the result themselves.
func (s *Store) List() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	return out
}

// Approve transitions a held record to Approved, returning the updated
// record. It fails with ErrNotHeld if the record has already left the
// held state, or ErrNotFound if it doesn't exist.
func (s *Store) Approve(id string) (*Record, error) {
	return s.transition(id, Approved)
}

// Delete transitions a held record to Deleted, returning the updated
// record. It fails with ErrNotHeld if the record has already left the
// held state, or ErrNotFound if it doesn't exist.
func (s *Store) Delete(id string) (*Record, error) {
	return s.transition(id, Deleted)
}

func (s *Store) transition(id string, to Disposition) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != Held {
		return nil, ErrNotHeld
	}
	rec.Status = to

	cp := *rec
	return &cp, nil
}
