package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

const keyPrefix = "geo:"

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements GeoCache using memcached. Memcached cannot list
// keys, so Keys reports the keys this process has written.
type MemcachedCache struct {
	client *memcache.Client
	ttl    time.Duration

	mu      sync.Mutex
	written map[string]struct{}
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). ttl <= 0 means no expiry.
func NewMemcachedCache(addrs string, ttl, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, ttl: ttl, written: make(map[string]struct{})}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	// Memcached keys may not contain spaces or control characters.
	return keyPrefix + strings.Join(strings.Fields(k), "_")
}

// Get implements GeoCache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Location, bool, error) {
	if ctx.Err() != nil {
		return models.Location{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.Location{}, false, nil
		}
		return models.Location{}, false, err
	}
	var loc models.Location
	if err := json.Unmarshal(item.Value, &loc); err != nil {
		return models.Location{}, false, err
	}
	return loc, true, nil
}

// Set implements GeoCache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, loc models.Location) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expiration(c.ttl, time.Now()),
	}); err != nil {
		return err
	}
	c.mu.Lock()
	c.written[key] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Keys returns the keys written by this process, sorted.
func (c *MemcachedCache) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.written))
	for k := range c.written {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// expiration converts ttl into memcached's expiration field: 0 never expires,
// up to 30 days is relative, beyond that an absolute unix time.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	sec := int64(ttl.Seconds())
	if sec < 1 {
		sec = 1
	}
	if sec > maxRelativeExp {
		return int32(now.Add(ttl).Unix())
	}
	return int32(sec)
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
