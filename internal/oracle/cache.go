package oracle

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const cacheTTL = 30 * time.Second

type pricePoint struct {
	price      decimal.Decimal
	observedAt time.Time
}

type cacheEntry struct {
	point     pricePoint
	expiresAt time.Time
}

// priceCache keeps prices for a short TTL so several feeds sharing a pair hit the network once.
type priceCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newPriceCache() *priceCache {
	return &priceCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *priceCache) get(key string) (pricePoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return pricePoint{}, false
	}
	return entry.point, true
}

func (c *priceCache) set(key string, point pricePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		point:     point,
		expiresAt: c.now().Add(cacheTTL),
	}
}
