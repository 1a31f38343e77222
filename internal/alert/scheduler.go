package alert

import (
	"context"
	"sort"
	"time"

	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/types"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// PriceSource looks up the current price of an asset. Any error means the
// price is unavailable for now.
type PriceSource interface {
	GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// Notifier is told about every alert that transitions to TRIGGERED.
type Notifier interface {
	AlertTriggered(ctx context.Context, a types.Alert) error
}

// SweepResult summarizes a single pass over the collection.
type SweepResult struct {
	Checked   int
	Skipped   int
	Triggered []types.Alert
	Persisted bool
}

type Scheduler struct {
	book     *Book
	prices   PriceSource
	notifier Notifier
	now      func() time.Time
	timeout  time.Duration
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithCallTimeout bounds every individual price fetch and delivery.
func WithCallTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.timeout = d }
}

func NewScheduler(book *Book, prices PriceSource, notifier Notifier, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		book:     book,
		prices:   prices,
		notifier: notifier,
		now:      time.Now,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type observation struct {
	owner    string
	id       string
	price    decimal.Decimal
	crossing Crossing
}

// Sweep checks every WATCHING alert once. Prices are fetched without holding
// the book lock; the decisions are then applied by UniqueID to the latest
// collection and written back in a single save. Notifications go out only
// after that save succeeded.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepResult, error) {
	snapshot, err := s.book.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not read alerts for sweep")
	}

	result := &SweepResult{}
	total, watching := snapshot.Count()
	if watching == 0 {
		metrics.WatchingAlerts.Set(0)
		return result, nil
	}
	log.Infof("Checking %d alerts (%d total)...", watching, total)

	owners := make([]string, 0, len(snapshot))
	for owner := range snapshot {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	prices := make(map[string]decimal.Decimal)
	failed := make(map[string]bool)

	var observations []observation
	for _, owner := range owners {
		for _, a := range snapshot[owner] {
			if !a.IsWatching() {
				continue
			}
			result.Checked++

			if failed[a.AssetID] {
				result.Skipped++
				continue
			}
			current, ok := prices[a.AssetID]
			if !ok {
				current, err = s.fetch(ctx, a.AssetID)
				if err != nil {
					log.WithFields(log.Fields{
						"alert": a.UniqueID,
						"asset": a.AssetID,
					}).Warnf("Skipping alert, price unavailable: %v", err)
					metrics.PriceFetchFailures.Inc()
					failed[a.AssetID] = true
					result.Skipped++
					continue
				}
				prices[a.AssetID] = current
			}

			observations = append(observations, observation{
				owner:    owner,
				id:       a.UniqueID,
				price:    current,
				crossing: Detect(a.LastObservedPrice, current, a.TargetPrice),
			})
		}
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("Sweep observations:\n%s", spew.Sdump(observations))
	}

	var triggered []types.Alert
	err = s.book.Apply(ctx, func(c types.Collection) (bool, error) {
		changed := false
		now := s.now()
		for _, o := range observations {
			a := find(c[o.owner], o.id)
			if a == nil || !a.IsWatching() {
				// Deleted, cleared or triggered since the snapshot was taken.
				continue
			}
			if o.crossing != None {
				at := now
				a.State = types.StateTriggered
				a.TriggerDirection = o.crossing.Direction()
				a.TriggeredAt = &at
				a.TriggeredPrice = o.price
				changed = true
			}
			if !a.LastObservedPrice.Equal(o.price) {
				a.LastObservedPrice = o.price
				changed = true
			}
			if o.crossing != None {
				triggered = append(triggered, *a)
			}
		}
		result.Persisted = changed
		return changed, nil
	})
	if err != nil {
		metrics.PersistFailures.Inc()
		log.WithField("triggered", len(triggered)).Errorf("Failed to persist alert sweep, transitions will be recomputed next sweep: %v", err)
		return result, errors.Wrap(err, "could not persist sweep")
	}

	metrics.WatchingAlerts.Set(float64(watching - len(triggered)))
	result.Triggered = triggered
	for _, a := range triggered {
		metrics.AlertsTriggered.Inc()
		s.deliver(ctx, a)
	}

	if len(triggered) > 0 {
		log.Infof("Triggered %d alerts", len(triggered))
	}
	return result, nil
}

func (s *Scheduler) fetch(ctx context.Context, assetID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.prices.GetPrice(ctx, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive price %s", p)
	}
	return p, nil
}

// deliver makes a single attempt. A failed delivery is not retried: the
// transition is already durable and the alert will never be evaluated again.
func (s *Scheduler) deliver(ctx context.Context, a types.Alert) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields := log.Fields{
		"alert":     a.UniqueID,
		"owner":     a.Owner,
		"asset":     a.AssetID,
		"direction": a.TriggerDirection,
	}
	if err := s.notifier.AlertTriggered(ctx, a); err != nil {
		metrics.DeliveriesFailed.Inc()
		log.WithFields(fields).Errorf("Failed to deliver alert notification: %v", err)
		return
	}
	log.WithFields(fields).Info("Alert notification delivered")
}

func find(alerts []types.Alert, id string) *types.Alert {
	for i := range alerts {
		if alerts[i].UniqueID == id {
			return &alerts[i]
		}
	}
	return nil
}
