package did

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Entry is the stored state of a locally known DID.
type Entry struct {
	// Key references the signing key in the key manager. Empty for
	// imported identifiers without signing capability.
	Key kms.KeyHandle
	// Document is the serialized document as created or imported.
	Document json.RawMessage
	// ReadOnly marks entries that carry public material only.
	ReadOnly bool
	// Deactivated marks identifiers whose lifecycle has ended.
	Deactivated bool
	// CreatedAt orders List output.
	CreatedAt time.Time
}

// Store keeps the DID-to-key association table. Implementations must make
// writes to the same identifier mutually exclusive.
type Store interface {
	Put(did string, e Entry) error
	Get(did string) (Entry, bool)
	SetKey(did string, h kms.KeyHandle) error
	Deactivate(did string) error
	List() []string
}

// MemoryStore manages DID entries in a thread-safe manner.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Put inserts or replaces the entry for a DID.
func (s *MemoryStore) Put(did string, e Entry) error {
	if did == "" {
		return fmt.Errorf("did cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[did]; !exists {
		s.order = append(s.order, did)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries[did] = e

	return nil
}

// Get retrieves the entry for a DID.
func (s *MemoryStore) Get(did string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[did]

	return e, exists
}

// SetKey re-binds the signing key of an existing entry and clears its
// read-only flag.
func (s *MemoryStore) SetKey(did string, h kms.KeyHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[did]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, did)
	}

	e.Key = h
	e.ReadOnly = h == ""
	s.entries[did] = e

	return nil
}

// Deactivate flags an existing entry as deactivated.
func (s *MemoryStore) Deactivate(did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[did]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, did)
	}

	e.Deactivated = true
	s.entries[did] = e

	return nil
}

// List returns all known identifiers in creation order.
func (s *MemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)

	return out
}
