package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mhrabovsky/titulky/internal/metrics"
)

// Cache is a byte-blob key-value store with TTL semantics. It holds parsed
// search results and downloaded subtitle payloads so repeated requests for
// the same subtitle do not hit the site again.
type Cache interface {
	// Get retrieves a value by key. The second return is false on a miss.
	Get(key string) ([]byte, bool)

	// Set stores a value under key, overwriting any previous value.
	Set(key string, value []byte)

	// Contains reports whether key is present without touching recency.
	Contains(key string) bool

	// Len returns the number of live entries.
	Len() int

	// Close releases resources held by the cache. In-memory caches treat
	// this as a no-op.
	Close() error
}

// Options configures a cache instance regardless of provider.
type Options struct {
	// Size caps the entry count for providers with LRU semantics.
	Size int

	// TTL is how long an entry stays valid.
	TTL time.Duration

	// RedisAddress, RedisPassword and RedisDB configure the redis provider
	// and are ignored by the memory provider.
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	// Name labels the instance in the cache hit/miss metrics. When empty the
	// cache is returned uninstrumented.
	Name string
}

// Provider constructs a Cache from options.
type Provider func(opts Options) (Cache, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// Register makes a provider available under the given name. It panics on a
// duplicate name or nil provider.
func Register(name string, p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()

	if p == nil {
		panic("cache: Register called with nil provider")
	}
	if _, ok := providers[name]; ok {
		panic(fmt.Sprintf("cache: provider %q registered twice", name))
	}
	providers[name] = p
}

// New builds a Cache with the named provider. When opts.Name is set the
// returned cache records hits and misses under that label.
func New(provider string, opts Options) (Cache, error) {
	providersMu.RLock()
	p, ok := providers[provider]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("cache: unknown provider %q (available: %v)", provider, Providers())
	}

	inner, err := p(opts)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return inner, nil
	}
	return &meteredCache{inner: inner, name: opts.Name}, nil
}

// Providers returns the sorted names of all registered providers.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// meteredCache counts hits and misses on Get. Everything else passes through.
type meteredCache struct {
	inner Cache
	name  string
}

func (c *meteredCache) Get(key string) ([]byte, bool) {
	value, ok := c.inner.Get(key)
	if ok {
		metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
	}
	return value, ok
}

func (c *meteredCache) Set(key string, value []byte) { c.inner.Set(key, value) }
func (c *meteredCache) Contains(key string) bool     { return c.inner.Contains(key) }
func (c *meteredCache) Len() int                     { return c.inner.Len() }
func (c *meteredCache) Close() error                 { return c.inner.Close() }
