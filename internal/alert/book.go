package alert

import (
	"context"
	"sync"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice    = errors.New("target price must be a positive number")
	ErrDuplicateAlert  = errors.New("an identical alert is already being watched")
	ErrIndexOutOfRange = errors.New("alert number out of range")
	ErrNoAlerts        = errors.New("no alerts")
)

// ErrPriceUnavailable means there is no usable current price to seed a new
// alert with.
var ErrPriceUnavailable = errors.New("current price unavailable")

// Store persists the whole alert collection. Save must be atomic: a reader
// never observes a partially written collection.
type Store interface {
	Load(ctx context.Context) (types.Collection, error)
	Save(ctx context.Context, c types.Collection) error
}

// Book serializes every read-modify-write of the alert collection. All
// mutations, from user commands and from the scheduler, go through it.
type Book struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
	newID func() string
}

type BookOption func(*Book)

func WithClock(now func() time.Time) BookOption {
	return func(b *Book) { b.now = now }
}

func WithIDGenerator(fn func() string) BookOption {
	return func(b *Book) { b.newID = fn }
}

func NewBook(store Store, opts ...BookOption) *Book {
	b := &Book{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewAlert carries everything needed to create an alert. CurrentPrice seeds
// the alert's last observed price.
type NewAlert struct {
	Owner        string
	OwnerName    string
	Coin         types.Coin
	TargetPrice  decimal.Decimal
	CurrentPrice decimal.Decimal
	Channel      int64
}

// Create appends a WATCHING alert for the owner. A WATCHING alert with the
// same asset and target is rejected with ErrDuplicateAlert.
func (b *Book) Create(ctx context.Context, req NewAlert) (types.Alert, error) {
	if !req.TargetPrice.IsPositive() {
		return types.Alert{}, ErrInvalidPrice
	}
	if !req.CurrentPrice.IsPositive() {
		return types.Alert{}, errors.Wrapf(ErrPriceUnavailable, "got %s", req.CurrentPrice)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.store.Load(ctx)
	if err != nil {
		return types.Alert{}, errors.Wrap(err, "could not load alerts")
	}

	for _, existing := range c[req.Owner] {
		if existing.IsWatching() && existing.AssetID == req.Coin.ID && existing.TargetPrice.Equal(req.TargetPrice) {
			return types.Alert{}, ErrDuplicateAlert
		}
	}

	a := types.Alert{
		UniqueID:          b.newID(),
		Owner:             req.Owner,
		OwnerName:         req.OwnerName,
		AssetID:           req.Coin.ID,
		DisplaySymbol:     req.Coin.Symbol,
		DisplayName:       req.Coin.Name,
		TargetPrice:       req.TargetPrice,
		LastObservedPrice: req.CurrentPrice,
		State:             types.StateWatching,
		CreatedAt:         b.now(),
		DeliveryChannel:   req.Channel,
	}
	c[req.Owner] = append(c[req.Owner], a)

	if err := b.store.Save(ctx, c); err != nil {
		return types.Alert{}, errors.Wrap(err, "could not save alerts")
	}
	return a, nil
}

// ListWatching returns the owner's WATCHING alerts in creation order. The
// position of an alert in this list is its user visible number (1-based).
func (b *Book) ListWatching(ctx context.Context, owner string) ([]types.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not load alerts")
	}
	return watchingView(c[owner]), nil
}

// DeleteByVisibleIndex removes the alert shown as number index in the
// WATCHING-only view. The index is resolved to the alert's UniqueID before the
// underlying sequence, which also holds TRIGGERED history, is touched.
func (b *Book) DeleteByVisibleIndex(ctx context.Context, owner string, index int) (types.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.store.Load(ctx)
	if err != nil {
		return types.Alert{}, errors.Wrap(err, "could not load alerts")
	}

	if len(c[owner]) == 0 {
		return types.Alert{}, ErrNoAlerts
	}
	view := watchingView(c[owner])
	if index < 1 || index > len(view) {
		return types.Alert{}, errors.Wrapf(ErrIndexOutOfRange, "%d not in 1..%d", index, len(view))
	}

	victim := view[index-1]
	remaining := lo.Reject(c[owner], func(a types.Alert, _ int) bool {
		return a.UniqueID == victim.UniqueID && a.IsWatching()
	})
	if len(remaining) == 0 {
		delete(c, owner)
	} else {
		c[owner] = remaining
	}

	if err := b.store.Save(ctx, c); err != nil {
		return types.Alert{}, errors.Wrap(err, "could not save alerts")
	}
	return victim, nil
}

// ClearForOwner drops every alert of the owner, TRIGGERED history included,
// and removes the owner from the collection. Returns the number removed.
func (b *Book) ClearForOwner(ctx context.Context, owner string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.store.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "could not load alerts")
	}

	n := len(c[owner])
	if n == 0 {
		return 0, ErrNoAlerts
	}
	delete(c, owner)

	if err := b.store.Save(ctx, c); err != nil {
		return 0, errors.Wrap(err, "could not save alerts")
	}
	return n, nil
}

// Snapshot returns a consistent copy of the whole collection.
func (b *Book) Snapshot(ctx context.Context) (types.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not load alerts")
	}
	return c.Clone(), nil
}

// Apply runs fn against a freshly loaded collection and saves it once if fn
// reports a change.
func (b *Book) Apply(ctx context.Context, fn func(types.Collection) (bool, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load alerts")
	}

	changed, err := fn(c)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := b.store.Save(ctx, c); err != nil {
		return errors.Wrap(err, "could not save alerts")
	}
	return nil
}

func watchingView(alerts []types.Alert) []types.Alert {
	return lo.Filter(alerts, func(a types.Alert, _ int) bool {
		return a.IsWatching()
	})
}
