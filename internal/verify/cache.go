package verify

import (
	"sync"
	"time"
)

// PendingCode is a short-lived one-time code awaiting validation. Codes are
// never persisted; a process restart drops them all.
type PendingCode struct {
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CodeStore holds pending codes keyed by purpose and recipient. A single
// process backs it with MemoryStore; a distributed deployment may substitute
// a TTL-capable external store. The Issuer serializes its own read-modify-
// write sequences, so implementations only need individual calls to be safe
// for concurrent use.
type CodeStore interface {
	Set(key string, code PendingCode)
	Get(key string) (PendingCode, bool)
	Delete(key string)
}

// MemoryStore is a mutex-guarded in-process CodeStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]PendingCode
}

var _ CodeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]PendingCode)}
}

func (s *MemoryStore) Set(key string, code PendingCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = code
}

func (s *MemoryStore) Get(key string) (PendingCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.entries[key]
	return code, ok
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports the number of pending codes. Diagnostics only.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
