package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/ports"
)

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func expiryFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// MemoryCredentialCache is an in-memory implementation of the CredentialCache interface.
// Entries expire lazily on read.
type MemoryCredentialCache struct {
	records map[core.Identity]memoryEntry[core.CredentialRecord]
	mu      sync.RWMutex
}

// NewMemoryCredentialCache creates a new in-memory credential cache
func NewMemoryCredentialCache() *MemoryCredentialCache {
	return &MemoryCredentialCache{
		records: make(map[core.Identity]memoryEntry[core.CredentialRecord]),
	}
}

var _ ports.CredentialCache = (*MemoryCredentialCache)(nil)

// Get returns a copy of the record for identity, or nil when absent
func (s *MemoryCredentialCache) Get(ctx context.Context, identity core.Identity) (*core.CredentialRecord, error) {
	s.mu.RLock()
	entry, ok := s.records[identity]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	if entry.expired(time.Now()) {
		s.mu.Lock()
		// Only delete if nobody replaced the entry meanwhile
		if current, exists := s.records[identity]; exists && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.records, identity)
		}
		s.mu.Unlock()
		return nil, nil
	}

	record := entry.value
	return &record, nil
}

// Set stores record for identity with the given TTL
func (s *MemoryCredentialCache) Set(ctx context.Context, identity core.Identity, record *core.CredentialRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[identity] = memoryEntry[core.CredentialRecord]{value: *record, expiresAt: expiryFor(ttl)}
	return nil
}

// Delete removes the record for identity. Deleting an absent record is not an error.
func (s *MemoryCredentialCache) Delete(ctx context.Context, identity core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, identity)
	return nil
}

// Clear removes all data from the store
func (s *MemoryCredentialCache) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[core.Identity]memoryEntry[core.CredentialRecord])
}

// MemoryRevocationStore is an in-memory implementation of the RevocationStore interface
type MemoryRevocationStore struct {
	cutoffs map[core.Identity]memoryEntry[time.Time]
	mu      sync.RWMutex
}

// NewMemoryRevocationStore creates a new in-memory revocation store
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		cutoffs: make(map[core.Identity]memoryEntry[time.Time]),
	}
}

var _ ports.RevocationStore = (*MemoryRevocationStore)(nil)

// RevokeBefore records a session cutoff for identity
func (s *MemoryRevocationStore) RevokeBefore(ctx context.Context, identity core.Identity, cutoff time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Never move a cutoff backwards
	if existing, ok := s.cutoffs[identity]; ok && !existing.expired(time.Now()) && existing.value.After(cutoff) {
		return nil
	}
	s.cutoffs[identity] = memoryEntry[time.Time]{value: cutoff, expiresAt: expiryFor(ttl)}
	return nil
}

// Cutoff returns the current cutoff for identity, if any
func (s *MemoryRevocationStore) Cutoff(ctx context.Context, identity core.Identity) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cutoffs[identity]
	if !ok || entry.expired(time.Now()) {
		return time.Time{}, false, nil
	}
	return entry.value, true, nil
}
