package brasilapi

import (
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

// CachedProvider wraps a Provider with in-memory LRU caches for address
// lookups and city searches. Forecasts always go to the inner provider.
type CachedProvider struct {
	inner     domain.Provider
	addresses *lruCache[domain.AddressRecord]
	cities    *lruCache[[]domain.CityCandidate]
	metrics   *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider. Each of the
// two caches holds up to maxEntries.
func NewCachedProvider(inner domain.Provider, maxEntries int, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:     inner,
		addresses: newLRUCache[domain.AddressRecord](maxEntries),
		cities:    newLRUCache[[]domain.CityCandidate](maxEntries),
		metrics:   metrics,
	}
}

func (c *CachedProvider) GetAddress(ctx context.Context, zipCode string) (domain.AddressRecord, error) {
	if rec, ok := c.addresses.get(zipCode); ok {
		c.record(endpointAddress, true)
		return rec, nil
	}
	c.record(endpointAddress, false)

	rec, err := c.inner.GetAddress(ctx, zipCode)
	if err != nil {
		return rec, err
	}
	c.addresses.put(zipCode, rec)
	return rec, nil
}

func (c *CachedProvider) SearchCities(ctx context.Context, name string) ([]domain.CityCandidate, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if cities, ok := c.cities.get(key); ok {
		c.record(endpointCitySearch, true)
		return append([]domain.CityCandidate(nil), cities...), nil
	}
	c.record(endpointCitySearch, false)

	cities, err := c.inner.SearchCities(ctx, name)
	if err != nil {
		return cities, err
	}
	// Only cache non-empty results so a miss can be retried later.
	if len(cities) > 0 {
		c.cities.put(key, append([]domain.CityCandidate(nil), cities...))
	}
	return cities, nil
}

func (c *CachedProvider) GetForecast(ctx context.Context, cityID int) (domain.ForecastRecord, error) {
	return c.inner.GetForecast(ctx, cityID)
}

func (c *CachedProvider) record(endpoint string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.metrics.ProviderCache.WithLabelValues(endpoint, result).Inc()
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
