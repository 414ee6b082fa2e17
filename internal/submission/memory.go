// File: internal/submission/memory.go
package submission

import (
	"context"
	"sync"
)

// MemoryChannel holds submissions in a mutex-guarded map. It is the
// same-process rendezvous and also a push Notifier: subscribers are signalled
// as soon as a write for their session lands.
type MemoryChannel struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
	waiters map[string]map[chan struct{}]struct{}
}

// NewMemoryChannel returns an empty channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		entries: make(map[string]map[string]any),
		waiters: make(map[string]map[chan struct{}]struct{}),
	}
}

func (m *MemoryChannel) Write(_ context.Context, sessionID string, payload map[string]any) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	// Round trip through the codec so readers never share maps with the writer.
	clean, err := decodePayload(data)
	if err != nil {
		clean = map[string]any{}
	}
	m.store(sessionID, clean)
	return nil
}

func (m *MemoryChannel) store(sessionID string, clean map[string]any) {
	m.mu.Lock()
	m.entries[sessionID] = clean
	waiters := make([]chan struct{}, 0, len(m.waiters[sessionID]))
	for ch := range m.waiters[sessionID] {
		waiters = append(waiters, ch)
	}
	m.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (m *MemoryChannel) Read(_ context.Context, sessionID string) (map[string]any, bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	return copyPayload(p), true, nil
}

// Subscribe returns a channel that receives a signal after each write for
// sessionID. If a payload already exists the first signal is immediate.
// cancel must be called to release the subscription.
func (m *MemoryChannel) Subscribe(_ context.Context, sessionID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	set, ok := m.waiters[sessionID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		m.waiters[sessionID] = set
	}
	set[ch] = struct{}{}
	// Signal under the lock: a writer cannot have filled ch yet.
	if _, exists := m.entries[sessionID]; exists {
		ch <- struct{}{}
	}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.waiters[sessionID], ch)
			if len(m.waiters[sessionID]) == 0 {
				delete(m.waiters, sessionID)
			}
			m.mu.Unlock()
		})
	}
	return ch, cancel
}
