package directory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownAsset = errors.New("unknown asset")

// Fetcher downloads the full coin list from an upstream source.
type Fetcher interface {
	FetchCoins(ctx context.Context) ([]types.Coin, error)
}

type snapshot struct {
	ByID     map[string]types.Coin `json:"by_id"`
	BySymbol map[string]types.Coin `json:"by_symbol"`
	ByName   map[string]types.Coin `json:"by_name"`
	All      []types.Coin          `json:"all_coins"`
}

// Directory resolves user supplied identifiers to canonical coins. Its
// contents are replaced wholesale on refresh and mirrored to a JSON file whose
// modification time tells how fresh the list is.
type Directory struct {
	path    string
	fetcher Fetcher
	maxAge  time.Duration
	now     func() time.Time

	attempts int
	backoff  *backoff.Backoff

	refreshMu sync.Mutex

	mu      sync.RWMutex
	data    *snapshot
	updated time.Time
}

type Option func(*Directory)

func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

func WithRetries(attempts int, b *backoff.Backoff) Option {
	return func(d *Directory) {
		d.attempts = attempts
		d.backoff = b
	}
}

func New(path string, fetcher Fetcher, maxAge time.Duration, opts ...Option) *Directory {
	d := &Directory{
		path:     path,
		fetcher:  fetcher,
		maxAge:   maxAge,
		now:      time.Now,
		attempts: 3,
		backoff:  helpers.NewBackoff(),
		data:     build(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// build indexes coins by lowercase id, ticker and name. On a key collision
// the earlier coin in the list wins, so ranked lists prefer the larger coin.
func build(coins []types.Coin) *snapshot {
	s := &snapshot{
		ByID:     make(map[string]types.Coin, len(coins)),
		BySymbol: make(map[string]types.Coin, len(coins)),
		ByName:   make(map[string]types.Coin, len(coins)),
		All:      coins,
	}
	for _, c := range coins {
		addKey(s.ByID, c.ID, c)
		addKey(s.BySymbol, c.Symbol, c)
		addKey(s.ByName, c.Name, c)
	}
	return s
}

func addKey(index map[string]types.Coin, key string, c types.Coin) {
	key = normalize(key)
	if key == "" {
		return
	}
	if _, ok := index[key]; !ok {
		index[key] = c
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Refresh makes sure the directory is loaded. Unless force is set, an on-disk
// snapshot younger than the freshness window is used as is. Otherwise the
// list is fetched; when that fails the best on-disk snapshot is kept and the
// fetch error is returned. The returned count is the directory size after the
// call.
func (d *Directory) Refresh(ctx context.Context, force bool) (int, error) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	if !force {
		if info, err := os.Stat(d.path); err == nil && d.now().Sub(info.ModTime()) < d.maxAge {
			err := d.loadFile()
			if err == nil {
				log.Debugf("Coin directory loaded from %s (%d coins)", d.path, d.Len())
				return d.Len(), nil
			}
			log.Warnf("Could not use coin snapshot %s: %v", d.path, err)
		}
	}

	var coins []types.Coin
	err := helpers.Retry(ctx, d.attempts, d.backoff, "coin list fetch", func(ctx context.Context) (err error) {
		coins, err = d.fetcher.FetchCoins(ctx)
		if err == nil && len(coins) == 0 {
			err = errors.New("empty coin list")
		}
		return err
	})
	if err != nil {
		log.Errorf("Error fetching coin list: %v", err)
		if d.Len() == 0 {
			if loadErr := d.loadFile(); loadErr != nil {
				log.Warnf("No usable coin snapshot at %s: %v", d.path, loadErr)
			}
		}
		return d.Len(), errors.Wrap(err, "coin list refresh failed")
	}

	s := build(coins)
	if err := d.writeFile(s); err != nil {
		log.Errorf("Could not write coin snapshot: %v", err)
	}
	d.install(s, d.now())
	log.Infof("Loaded %d coins into the directory", len(coins))
	return len(coins), nil
}

func (d *Directory) install(s *snapshot, updated time.Time) {
	d.mu.Lock()
	d.data = s
	d.updated = updated
	d.mu.Unlock()
	metrics.DirectorySize.Set(float64(len(s.All)))
}

func (d *Directory) loadFile() error {
	info, err := os.Stat(d.path)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return errors.Wrap(err, "read snapshot")
	}
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	// The indices are rebuilt from the list so that a hand edited or older
	// file cannot disagree with it.
	d.install(build(s.All), info.ModTime())
	return nil
}

func (d *Directory) writeFile(s *snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}
	tmp, err := os.CreateTemp(dir, ".coins-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), d.path), "replace snapshot")
}

// Resolve looks identifier up by exact id, ticker and name, in that order,
// then falls back to the first coin whose id, ticker or name contains it.
func (d *Directory) Resolve(identifier string) (types.Coin, error) {
	key := normalize(identifier)
	if key == "" {
		return types.Coin{}, errors.Wrap(ErrUnknownAsset, "empty identifier")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if c, ok := d.data.ByID[key]; ok {
		return c, nil
	}
	if c, ok := d.data.BySymbol[key]; ok {
		return c, nil
	}
	if c, ok := d.data.ByName[key]; ok {
		return c, nil
	}
	for _, c := range d.data.All {
		if matches(c, key) {
			return c, nil
		}
	}
	return types.Coin{}, errors.Wrapf(ErrUnknownAsset, "%q", identifier)
}

// Search returns up to limit coins matching query, exact match first.
func (d *Directory) Search(query string, limit int) []types.Coin {
	key := normalize(query)
	if key == "" || limit <= 0 {
		return nil
	}

	var out []types.Coin
	seen := make(map[string]bool)
	if c, err := d.Resolve(query); err == nil {
		out = append(out, c)
		seen[c.ID] = true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.data.All {
		if len(out) >= limit {
			break
		}
		if !seen[c.ID] && matches(c, key) {
			out = append(out, c)
			seen[c.ID] = true
		}
	}
	return out
}

func matches(c types.Coin, key string) bool {
	return strings.Contains(strings.ToLower(c.ID), key) ||
		strings.Contains(strings.ToLower(c.Symbol), key) ||
		strings.Contains(strings.ToLower(c.Name), key)
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data.All)
}

// UpdatedAt is the time the current contents were fetched. Zero when empty.
func (d *Directory) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updated
}
