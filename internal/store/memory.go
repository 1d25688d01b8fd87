package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

type memItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !i.expiresAt.After(now)
}

// memLRU is a bounded LRU with per-key expiry.
type memLRU struct {
	clock clock.Clock
	cache *lru.Cache[string, memItem]
}

func newMemLRU(size int, clk clock.Clock) (*memLRU, error) {
	if clk == nil {
		clk = clock.New()
	}
	c, err := lru.New[string, memItem](size)
	if err != nil {
		return nil, err
	}
	return &memLRU{clock: clk, cache: c}, nil
}

func (m *memLRU) get(key string) (memItem, bool) {
	it, ok := m.cache.Get(key)
	if !ok {
		return memItem{}, false
	}
	if it.expired(m.clock.Now()) {
		m.cache.Remove(key)
		return memItem{}, false
	}
	return it, true
}

func (m *memLRU) set(key string, value []byte, ttl time.Duration) {
	it := memItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.clock.Now().Add(ttl)
	}
	m.cache.Add(key, it)
}

// MemoryTier is an in-process primary tier, used when no Redis is configured.
type MemoryTier struct {
	data *memLRU
}

var _ Primary = (*MemoryTier)(nil)

func NewMemoryTier(size int, clk clock.Clock) (*MemoryTier, error) {
	data, err := newMemLRU(size, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}
	return &MemoryTier{data: data}, nil
}

func (m *MemoryTier) Get(_ context.Context, key string) ([]byte, error) {
	it, ok := m.data.get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return it.value, nil
}

func (m *MemoryTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data.set(key, value, ttl)
	return nil
}

func (m *MemoryTier) TTL(_ context.Context, key string) (time.Duration, error) {
	it, ok := m.data.get(key)
	if !ok {
		return 0, ErrNotFound
	}
	if it.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return it.expiresAt.Sub(m.data.clock.Now()), nil
}

// MemoryMarkers keeps coordination markers in process. Locks taken here are
// only visible to the current process.
type MemoryMarkers struct {
	mu      sync.Mutex
	markers *memLRU
}

var _ Markers = (*MemoryMarkers)(nil)

func NewMemoryMarkers(size int, clk clock.Clock) (*MemoryMarkers, error) {
	markers, err := newMemLRU(size, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory markers: %w", err)
	}
	return &MemoryMarkers{markers: markers}, nil
}

func (m *MemoryMarkers) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.markers.get(key); ok {
		return false, nil
	}
	m.markers.set(key, value, ttl)
	return true, nil
}

func (m *MemoryMarkers) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers.set(key, value, ttl)
	return nil
}

func (m *MemoryMarkers) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.markers.get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return it.value, nil
}

func (m *MemoryMarkers) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.markers.get(key)
	return ok, nil
}

func (m *MemoryMarkers) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers.cache.Remove(key)
	return nil
}

// MemoryDurable keeps durable rows in process memory. Data does not survive a
// restart; it exists for local runs without a database and for tests.
type MemoryDurable struct {
	mu   sync.RWMutex
	rows map[Table]map[string]Entry
}

var _ Durable = (*MemoryDurable)(nil)

func NewMemoryDurable() *MemoryDurable {
	rows := make(map[Table]map[string]Entry, len(Tables))
	for _, t := range Tables {
		rows[t] = make(map[string]Entry)
	}
	return &MemoryDurable{rows: rows}
}

func (d *MemoryDurable) Get(_ context.Context, table Table, key string, now time.Time) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.rows[table][key]
	if !ok || e.expired(now) {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (d *MemoryDurable) Upsert(_ context.Context, table Table, entry Entry) error {
	if !table.Valid() {
		return ErrInvalidTable
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry.Payload = append([]byte(nil), entry.Payload...)
	d.rows[table][entry.Key] = entry
	return nil
}

func (d *MemoryDurable) DeleteExpired(_ context.Context, table Table, now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int64
	for key, e := range d.rows[table] {
		if e.expired(now) {
			delete(d.rows[table], key)
			n++
		}
	}
	return n, nil
}

// Len counts stored rows including logically expired ones.
func (d *MemoryDurable) Len(table Table) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows[table])
}

func (d *MemoryDurable) Close() {}
