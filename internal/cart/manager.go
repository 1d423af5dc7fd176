package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
)

const (
	// DefaultMirrorTTL matches the default cart TTL of the cache.
	DefaultMirrorTTL = 7 * 24 * time.Hour

	// emptyIdleTTL bounds how long a store with nothing in it is kept after
	// its last use. Its mirror is absent, so dropping it loses nothing.
	emptyIdleTTL = 10 * time.Minute

	sweepEvery = 256
)

type managedStore struct {
	st       *Store
	loadedAt time.Time
	lastUsed time.Time
}

// Manager owns one Store per shopper session. A store lives no longer than
// its mirror: once mirrorTTL has passed since the mirror was last read or
// written, the next Get reloads from the cache.
type Manager struct {
	cache     repository.CartCache
	mirrorTTL time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	stores  map[string]*managedStore
	inserts int
}

// NewManager creates a manager backed by cache. mirrorTTL must match the TTL
// the cache applies on load and save.
func NewManager(cache repository.CartCache, mirrorTTL time.Duration, logger *slog.Logger) *Manager {
	if mirrorTTL <= 0 {
		mirrorTTL = DefaultMirrorTTL
	}
	return &Manager{
		cache:     cache,
		mirrorTTL: mirrorTTL,
		logger:    logger,
		now:       time.Now,
		stores:    make(map[string]*managedStore),
	}
}

// Get returns the store for the shopper session, rebuilding it from the cache
// mirror on first use or after the mirror has expired.
func (m *Manager) Get(ctx context.Context, shopperSessionID string) (*Store, error) {
	now := m.now()

	m.mu.Lock()
	if e, ok := m.stores[shopperSessionID]; ok {
		if !m.expired(e, now) {
			e.lastUsed = now
			m.mu.Unlock()
			return e.st, nil
		}
		delete(m.stores, shopperSessionID)
	}
	m.mu.Unlock()

	snap, err := m.cache.Load(ctx, shopperSessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart mirror: %w", err)
	}
	if err := snap.Validate(); err != nil {
		m.logger.WarnContext(ctx, "discarding invalid cart mirror",
			slog.String("shopper_session", shopperSessionID),
			slog.String("error", err.Error()),
		)
		snap = domain.CartSnapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have rebuilt the store while the mirror was loading.
	if e, ok := m.stores[shopperSessionID]; ok {
		e.lastUsed = now
		return e.st, nil
	}

	st := NewStore(shopperSessionID, snap, m.cache, m.logger)
	st.now = m.now
	m.stores[shopperSessionID] = &managedStore{st: st, loadedAt: now, lastUsed: now}

	m.inserts++
	if m.inserts%sweepEvery == 0 {
		m.sweepLocked(now)
	}
	return st, nil
}

// Clear empties the cart of the shopper session.
func (m *Manager) Clear(ctx context.Context, shopperSessionID string) error {
	st, err := m.Get(ctx, shopperSessionID)
	if err != nil {
		return err
	}
	return st.Clear(ctx)
}

// Forget drops the in-memory store. The mirror stays in the cache, so the
// next Get rebuilds the same cart.
func (m *Manager) Forget(shopperSessionID string) {
	m.mu.Lock()
	delete(m.stores, shopperSessionID)
	m.mu.Unlock()
}

// Sweep drops stores whose mirror has expired and empty stores that have
// been idle for a while.
func (m *Manager) Sweep() {
	m.mu.Lock()
	m.sweepLocked(m.now())
	m.mu.Unlock()
}

// Len returns the number of live stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

func (m *Manager) sweepLocked(now time.Time) {
	for id, e := range m.stores {
		if m.expired(e, now) || (e.st.isEmpty() && now.Sub(e.lastUsed) >= emptyIdleTTL) {
			delete(m.stores, id)
		}
	}
}

func (m *Manager) expired(e *managedStore, now time.Time) bool {
	touched := e.loadedAt
	if at := e.st.mirroredAt(); at.After(touched) {
		touched = at
	}
	return now.Sub(touched) >= m.mirrorTTL
}
