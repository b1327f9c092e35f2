package scheduling

import (
	"context"
	"sync"
	"time"
)

// Cache stores resolved calendar identities for the directory. Entries carry
// an absolute expiry; expired entries are treated as absent. Implementations
// must never fail a resolution; a broken cache degrades to misses.
type Cache interface {
	Get(ctx context.Context, providerID string) (ProviderCalendarInfo, bool)
	Set(ctx context.Context, providerID string, info ProviderCalendarInfo, ttl time.Duration)
	Delete(ctx context.Context, providerID string)
	Flush(ctx context.Context)
}

type memoryEntry struct {
	value     ProviderCalendarInfo
	expiresAt time.Time
}

// MemoryCache is the default process-local Cache. Entries are removed lazily
// when read after expiry. The clock is injectable for tests.
type MemoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache builds a cache on the wall clock.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock builds a cache on a caller-supplied clock.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, providerID string) (ProviderCalendarInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[providerID]
	if !ok {
		return ProviderCalendarInfo{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, providerID)
		return ProviderCalendarInfo{}, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, providerID string, info ProviderCalendarInfo, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[providerID] = memoryEntry{value: info, expiresAt: c.now().Add(ttl)}
}

func (c *MemoryCache) Delete(_ context.Context, providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, providerID)
}

func (c *MemoryCache) Flush(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}

// Len reports the number of stored entries, including any not yet lazily
// expired. Used by tests and the admin cache endpoint.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
