package jit

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/gsc/pkg/config"
)

// Cache keeps compiled modules keyed by their source and settings, so a host
// that re-submits an unchanged script gets the previous Module back.
type Cache struct {
	mu      sync.Mutex
	cfg     *config.Config
	modules map[uint64]*Module
	hits    int
}

func NewCache(cfg *config.Config) *Cache {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Cache{cfg: cfg, modules: make(map[uint64]*Module)}
}

func (c *Cache) key(name, source string) uint64 {
	d := xxhash.New()
	d.WriteString(c.cfg.Key())
	d.WriteString("\x00")
	d.WriteString(name)
	d.WriteString("\x00")
	d.WriteString(source)
	return d.Sum64()
}

// Get returns the cached module for source or compiles it. Failed
// compilations are not cached.
func (c *Cache) Get(ctx context.Context, name, source string) (*Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(name, source)
	if m, ok := c.modules[k]; ok {
		c.hits++
		return m, nil
	}
	m, err := Compile(ctx, name, source, c.cfg.Clone())
	if err != nil {
		return nil, err
	}
	c.modules[k] = m
	return m, nil
}

// Hits reports how many Get calls were served from the cache.
func (c *Cache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// Close releases every cached module.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for k, m := range c.modules {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.modules, k)
	}
	return first
}
