package jit

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// CacheConfig holds translation cache geometry.
type CacheConfig struct {
	// Sets is the number of sets.
	Sets int `json:"sets"`
	// Associativity is the number of blocks per set.
	Associativity int `json:"associativity"`
}

// DefaultCacheConfig returns a small cache that easily holds every unit of
// a test run.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Sets:          64,
		Associativity: 4,
	}
}

// keyGranule is the directory block size. Keys are spaced by it so that
// consecutive halfword-aligned entries land in consecutive sets.
const keyGranule = 4

// CacheStats holds translation cache statistics.
type CacheStats struct {
	Lookups       uint64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Invalidations uint64
}

// BlockCache caches translated units keyed by entry address and
// instruction set, using an akita directory for set/way placement and LRU
// replacement.
type BlockCache struct {
	config CacheConfig

	directory *akitacache.DirectoryImpl

	// units is indexed by (setID * associativity + wayID).
	units []*Unit

	stats CacheStats
}

// NewBlockCache creates an empty translation cache.
func NewBlockCache(config CacheConfig) *BlockCache {
	return &BlockCache{
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Associativity,
			keyGranule,
			akitacache.NewLRUVictimFinder(),
		),
		units: make([]*Unit, config.Sets*config.Associativity),
	}
}

// Config returns the cache configuration.
func (c *BlockCache) Config() CacheConfig {
	return c.config
}

// Stats returns cache statistics.
func (c *BlockCache) Stats() CacheStats {
	return c.stats
}

func cacheKey(entry uint64, thumb bool) uint64 {
	key := (entry >> 1) * keyGranule
	if thumb {
		key |= 1
	}
	return key
}

func (c *BlockCache) slot(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// Lookup returns the cached unit for entry, or nil.
func (c *BlockCache) Lookup(entry uint64, thumb bool) *Unit {
	c.stats.Lookups++

	block := c.directory.Lookup(0, cacheKey(entry, thumb))
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return nil
	}

	c.stats.Hits++
	c.directory.Visit(block)
	return c.units[c.slot(block)]
}

// Insert places u in the cache, evicting the least recently used unit of
// its set when full.
func (c *BlockCache) Insert(u *Unit) {
	key := cacheKey(u.Entry, u.Thumb)

	victim := c.directory.FindVictim(key)
	if victim == nil {
		return
	}
	if victim.IsValid {
		c.stats.Evictions++
	}

	victim.Tag = key
	victim.IsValid = true
	victim.IsDirty = false
	c.units[c.slot(victim)] = u
	c.directory.Visit(victim)
}

// Invalidate drops every unit whose code overlaps [addr, addr+n).
func (c *BlockCache) Invalidate(addr, n uint64) {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}
			u := c.units[c.slot(block)]
			if u != nil && u.Overlaps(addr, n) {
				block.IsValid = false
				c.units[c.slot(block)] = nil
				c.stats.Invalidations++
			}
		}
	}
}

// Reset drops every unit and clears statistics.
func (c *BlockCache) Reset() {
	c.directory.Reset()
	for i := range c.units {
		c.units[i] = nil
	}
	c.stats = CacheStats{}
}
