package news

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"crypto-alert-bot/internal/metrics"

	"github.com/StudioSol/set"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/buntdb"
)

const keyPrefix = "news:"

// Cache remembers which news items were already announced. Entries keep
// their insertion order so that compaction can drop the oldest ones. When
// opened on a file the cache survives restarts.
type Cache struct {
	mu   sync.Mutex
	ids  *set.LinkedHashSetString
	next uint64
	db   *buntdb.DB

	highWater int
	lowWater  int
}

// NewCache returns a memory only cache.
func NewCache(highWater, lowWater int) *Cache {
	highWater = max(highWater, 0)
	lowWater = min(max(lowWater, 0), highWater)
	return &Cache{
		ids:       set.NewLinkedHashSetString(),
		highWater: highWater,
		lowWater:  lowWater,
	}
}

// OpenCache returns a cache backed by a buntdb file at path. Use ":memory:"
// for a throwaway store.
func OpenCache(path string, highWater, lowWater int) (*Cache, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open news cache")
	}

	c := NewCache(highWater, lowWater)
	c.db = db

	type entry struct {
		id  string
		seq uint64
	}
	var entries []entry
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(key, value string) bool {
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				log.Warnf("Skipping news cache entry %s: %v", key, err)
				return true
			}
			entries = append(entries, entry{id: strings.TrimPrefix(key, keyPrefix), seq: n})
			return true
		})
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to read news cache")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		c.ids.Add(e.id)
		if e.seq >= c.next {
			c.next = e.seq + 1
		}
	}
	metrics.NewsCacheSize.Set(float64(c.ids.Length()))
	log.Debugf("News cache loaded with %d entries", len(entries))
	return c, nil
}

func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids.InArray(id)
}

// Mark records id as announced. Marking a known id keeps its original
// position. The id is remembered in memory even when writing it to disk
// fails.
func (c *Cache) Mark(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ids.InArray(id) {
		return nil
	}
	n := c.next
	c.next++
	c.ids.Add(id)
	metrics.NewsCacheSize.Set(float64(c.ids.Length()))

	if c.db == nil {
		return nil
	}
	err := c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyPrefix+id, strconv.FormatUint(n, 10), nil)
		return err
	})
	return errors.Wrap(err, "failed to persist news id")
}

// Compact drops the oldest entries once the cache holds more than the high
// water mark, keeping the most recently inserted low water entries. It
// returns how many entries were removed.
func (c *Cache) Compact() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.ids.Length()
	if size <= c.highWater {
		return 0, nil
	}
	all := c.ids.AsSlice()
	drop := all[:len(all)-c.lowWater]

	if c.db != nil {
		err := c.db.Update(func(tx *buntdb.Tx) error {
			for _, id := range drop {
				if _, err := tx.Delete(keyPrefix + id); err != nil && err != buntdb.ErrNotFound {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, errors.Wrap(err, "failed to compact news cache")
		}
	}
	for _, id := range drop {
		c.ids.Remove(id)
	}
	metrics.NewsCacheSize.Set(float64(c.ids.Length()))
	log.Infof("Cleaned up %d old news entries", len(drop))
	return len(drop), nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids.Length()
}

// IDs returns the cached ids, oldest first.
func (c *Cache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids.AsSlice()
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
