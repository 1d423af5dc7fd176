package service

import (
	"sync"
	"time"
)

type memoEntry struct {
	outcome Outcome
	at      time.Time
}

// doneMemo remembers completed reconciliations per provider session so a
// repeated return visit does not write again. Expired entries are dropped on
// access.
type doneMemo struct {
	mu      sync.RWMutex
	entries map[string]memoEntry
	ttl     time.Duration
	now     func() time.Time
}

func newDoneMemo(ttl time.Duration) *doneMemo {
	return &doneMemo{
		entries: make(map[string]memoEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *doneMemo) get(key string) (Outcome, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Outcome{}, false
	}

	if m.now().Sub(e.at) > m.ttl {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return Outcome{}, false
	}
	return e.outcome, true
}

func (m *doneMemo) put(key string, o Outcome) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoEntry{outcome: o, at: now}
	if len(m.entries)%256 == 0 {
		for k, e := range m.entries {
			if now.Sub(e.at) > m.ttl {
				delete(m.entries, k)
			}
		}
	}
}

func (m *doneMemo) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
