package commands

import (
	"sync"
	"time"
)

type CacheItem struct {
	ChartData  []byte
	Caption    string
	Expiration time.Time
}

// ChartCache keeps rendered charts for a short while; rendering is the most
// expensive thing a command does.
type ChartCache struct {
	mu    sync.Mutex
	items map[string]*CacheItem
	ttl   time.Duration
	now   func() time.Time
}

func NewChartCache(ttl time.Duration) *ChartCache {
	return &ChartCache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *ChartCache) Get(key string) (*CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if !c.now().Before(item.Expiration) {
		delete(c.items, key)
		return nil, false
	}
	return item, true
}

func (c *ChartCache) Set(key string, chartData []byte, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &CacheItem{
		ChartData:  chartData,
		Caption:    caption,
		Expiration: c.now().Add(c.ttl),
	}
}
