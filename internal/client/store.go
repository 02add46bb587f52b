package client

import "sync"

// Session keys the orchestrator persists between requests of one browser
// session.
const (
	keyUser         = "user"
	keyRelayState   = "relay_state"
	keyTargetedPath = "targeted_path"
	keySessionIndex = "session_index"
)

// SessionStore persists the orchestrator's per-session state. One store
// instance backs one logical browser session; concurrent requests of the same
// session are not coordinated, last write wins.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStore is the in-memory SessionStore used by tests and single-process
// deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
