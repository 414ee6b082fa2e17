// File: internal/credentials/store.go
package credentials

import "sync"

// LatestKey is the sentinel slot that always holds the most recent credential.
// It serves single-process deployments where no session correlator exists.
const LatestKey = "_latest"

// Store maps session identifiers to LLM credentials. Entries live for the
// lifetime of the process; there is no eviction.
type Store struct {
	mu       sync.RWMutex
	bindings map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{bindings: make(map[string]string)}
}

// Put binds credential to sessionID when one is given and unconditionally
// overwrites the latest slot. An empty credential is ignored.
func (s *Store) Put(sessionID, credential string) {
	if credential == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID != "" && sessionID != LatestKey {
		s.bindings[sessionID] = credential
	}
	s.bindings[LatestKey] = credential
}

// Get returns the session-scoped binding, else the latest binding.
func (s *Store) Get(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sessionID != "" {
		if c, ok := s.bindings[sessionID]; ok {
			return c, true
		}
	}
	c, ok := s.bindings[LatestKey]
	return c, ok
}

// Len reports the number of bindings, the latest slot included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

// Resolve applies credential precedence: the connection-scoped binding for
// sessionID, then the explicit call parameter, then the process default.
func (s *Store) Resolve(sessionID, explicit, fallback string) string {
	if s != nil {
		if c, ok := s.Get(sessionID); ok && c != "" {
			return c
		}
	}
	if explicit != "" {
		return explicit
	}
	return fallback
}
