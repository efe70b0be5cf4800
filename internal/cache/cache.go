// Package cache stores geocoding results keyed by normalized city name.
package cache

import (
	"context"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// GeoCache stores resolved coordinates. Get returns (loc, true, nil) on hit
// and (zero, false, nil) on miss. Keys lists the cities currently cached.
type GeoCache interface {
	Get(ctx context.Context, key string) (models.Location, bool, error)
	Set(ctx context.Context, key string, loc models.Location) error
	Keys(ctx context.Context) ([]string, error)
}

// InMemoryCache implements GeoCache on patrickmn/go-cache. Safe for concurrent use.
type InMemoryCache struct {
	items *gocache.Cache
}

// NewInMemoryCache creates an in-process cache. ttl <= 0 means entries never expire.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	expiration := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 2 * ttl
	}
	return &InMemoryCache{items: gocache.New(expiration, cleanup)}
}

// Get retrieves the cached location for key.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Location, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return models.Location{}, false, nil
	}
	loc, ok := v.(models.Location)
	if !ok {
		return models.Location{}, false, nil
	}
	return loc, true, nil
}

// Set stores loc under key with the cache's default expiration.
func (c *InMemoryCache) Set(ctx context.Context, key string, loc models.Location) error {
	c.items.Set(key, loc, gocache.DefaultExpiration)
	return nil
}

// Keys returns the unexpired keys, sorted.
func (c *InMemoryCache) Keys(ctx context.Context) ([]string, error) {
	items := c.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
