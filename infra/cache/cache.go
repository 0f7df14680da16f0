// Package cache keeps recently used factories in memory keyed by SHA key.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/infra/logger"
)

// DefaultSize is used when Config.Size is zero.
const DefaultSize = 128

// Config controls the factory cache.
type Config struct {
	Enabled bool `json:"enabled"`
	Size    int  `json:"size"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Size == 0 {
		c.Size = DefaultSize
	}
}

// Validate checks the cache settings.
func (c Config) Validate() error {
	if c.Size < 0 {
		return fmt.Errorf("cache size must be positive")
	}
	return nil
}

// Factories is a bounded LRU of factories.
type Factories struct {
	lru    *lru.Cache[string, factory.Factory]
	logger logger.Logger
}

// New returns a cache holding at most size factories.
func New(size int, log logger.Logger) (*Factories, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Factories{logger: log}
	l, err := lru.NewWithEvict(size, func(sha string, f factory.Factory) {
		c.logger.Debugw("factory evicted", map[string]any{"sha_key": sha, "name": f.Name()})
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the cached factory for sha, or nil.
func (c *Factories) Get(sha string) factory.Factory {
	f, ok := c.lru.Get(sha)
	if !ok {
		return nil
	}
	return f
}

// Add caches f under sha. Nil factories are ignored.
func (c *Factories) Add(sha string, f factory.Factory) {
	if f == nil || sha == "" {
		return
	}
	c.lru.Add(sha, f)
}

// Remove drops sha, reporting whether it was cached.
func (c *Factories) Remove(sha string) bool { return c.lru.Remove(sha) }

// Len returns the number of cached factories.
func (c *Factories) Len() int { return c.lru.Len() }

// Purge empties the cache.
func (c *Factories) Purge() { c.lru.Purge() }
