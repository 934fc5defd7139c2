package store

import (
	"context"
	"sync"
	"time"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

type memoryKey struct {
	userID string
	key    phase.Key
}

// MemoryStore keeps records in a mutex-guarded map. Contents are lost on
// Close.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
	nowFunc func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[memoryKey]Record),
		nowFunc: time.Now,
	}
}

// Get returns the stored payload or nil if none exists.
func (s *MemoryStore) Get(_ context.Context, userID string, key phase.Key) (*phase.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[memoryKey{userID, key}]
	if !ok {
		return nil, nil
	}

	p := rec.Payload

	return &p, nil
}

// Put stores p, replacing any previous value.
func (s *MemoryStore) Put(_ context.Context, userID string, key phase.Key, p phase.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[memoryKey{userID, key}] = Record{
		UserID:    userID,
		Key:       key,
		Payload:   p,
		UpdatedAt: s.nowFunc(),
	}

	return nil
}

// List returns all records for userID in registry order.
func (s *MemoryStore) List(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record

	for k, rec := range s.records {
		if k.userID == userID {
			out = append(out, rec)
		}
	}

	sortRecords(out)

	return out, nil
}

// Close drops all records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[memoryKey]Record)

	return nil
}
