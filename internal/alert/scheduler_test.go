package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
	hook   func(assetID string)
	block  bool
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices: make(map[string]decimal.Decimal),
		calls:  make(map[string]int),
	}
}

func (f *fakePrices) set(assetID, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[assetID] = d(price)
}

func (f *fakePrices) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	f.mu.Lock()
	f.calls[assetID]++
	p, ok := f.prices[assetID]
	hook, block := f.hook, f.block
	f.mu.Unlock()

	if hook != nil {
		hook(assetID)
	}
	if block {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	if !ok {
		return decimal.Zero, errors.Errorf("unknown asset %s", assetID)
	}
	return p, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []types.Alert
	err       error
}

func (f *fakeNotifier) AlertTriggered(_ context.Context, a types.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, a)
	return f.err
}

func (f *fakeNotifier) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.delivered {
		if a.UniqueID == id {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *memStore
	book     *Book
	prices   *fakePrices
	notifier *fakeNotifier
	sched    *Scheduler
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		prices:   newFakePrices(),
		notifier: &fakeNotifier{},
		now:      epoch.Add(time.Hour),
	}
	f.book = newTestBook(f.store)
	f.sched = NewScheduler(f.book, f.prices, f.notifier,
		WithSchedulerClock(func() time.Time { return f.now }),
		WithCallTimeout(50*time.Millisecond),
	)
	return f
}

func (f *fixture) sweep(t *testing.T) *SweepResult {
	t.Helper()
	res, err := f.sched.Sweep(context.Background())
	require.NoError(t, err)
	return res
}

func (f *fixture) alert(t *testing.T, owner, id string) types.Alert {
	t.Helper()
	a := find(f.store.snapshot()[owner], id)
	require.NotNil(t, a)
	return *a
}

func TestSweepScenario(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")

	f.prices.set(bitcoin.ID, "110")
	res := f.sweep(t)
	require.Empty(t, res.Triggered)
	got := f.alert(t, "7", a.UniqueID)
	require.Equal(t, types.StateWatching, got.State)
	require.True(t, got.LastObservedPrice.Equal(d("110")))
	require.Equal(t, 0, f.notifier.count(a.UniqueID))

	f.prices.set(bitcoin.ID, "125")
	res = f.sweep(t)
	require.Len(t, res.Triggered, 1)
	got = f.alert(t, "7", a.UniqueID)
	require.Equal(t, types.StateTriggered, got.State)
	require.Equal(t, types.DirectionAbove, got.TriggerDirection)
	require.NotNil(t, got.TriggeredAt)
	require.True(t, got.TriggeredAt.Equal(f.now))
	require.True(t, got.TriggeredPrice.Equal(d("125")))
	require.True(t, got.LastObservedPrice.Equal(d("125")))
	require.Equal(t, 1, f.notifier.count(a.UniqueID))

	f.prices.set(bitcoin.ID, "90")
	res = f.sweep(t)
	require.Equal(t, 0, res.Checked, "triggered alerts are not evaluated")
	got = f.alert(t, "7", a.UniqueID)
	require.Equal(t, types.StateTriggered, got.State)
	require.Equal(t, types.DirectionAbove, got.TriggerDirection)
	require.True(t, got.LastObservedPrice.Equal(d("125")))
	require.Equal(t, 1, f.notifier.count(a.UniqueID))
}

func TestZeroSeedIsRejectedBeforeSweep(t *testing.T) {
	f := newFixture()
	_, err := f.book.Create(context.Background(), NewAlert{Owner: "7", Coin: bitcoin, TargetPrice: d("120"), CurrentPrice: d("0")})
	require.ErrorIs(t, err, ErrPriceUnavailable)

	a := create(t, f.book, "7", bitcoin, "120", "130")
	f.prices.set(bitcoin.ID, "130")
	res := f.sweep(t)
	require.Empty(t, res.Triggered)
	require.Equal(t, types.StateWatching, f.alert(t, "7", a.UniqueID).State)
	require.Equal(t, 0, f.notifier.count(a.UniqueID))
}

func TestSweepCrossDown(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "130")

	f.prices.set(bitcoin.ID, "120")
	res := f.sweep(t)
	require.Len(t, res.Triggered, 1)
	require.Equal(t, types.DirectionBelow, f.alert(t, "7", a.UniqueID).TriggerDirection)
}

func TestSweepIdempotent(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")

	f.prices.set(bitcoin.ID, "110")
	f.sweep(t)
	saves := f.store.saves

	res := f.sweep(t)
	require.False(t, res.Persisted)
	require.Equal(t, saves, f.store.saves, "unchanged price must not write")
	require.Equal(t, types.StateWatching, f.alert(t, "7", a.UniqueID).State)

	f.prices.set(bitcoin.ID, "111")
	res = f.sweep(t)
	require.True(t, res.Persisted)
	require.True(t, f.alert(t, "7", a.UniqueID).LastObservedPrice.Equal(d("111")))
	require.Equal(t, types.StateWatching, f.alert(t, "7", a.UniqueID).State)
}

func TestSweepNoDoubleDelivery(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")

	for _, p := range []string{"119", "121", "119", "120", "125", "100", "130", "120"} {
		f.prices.set(bitcoin.ID, p)
		f.sweep(t)
	}
	require.Equal(t, 1, f.notifier.count(a.UniqueID))
}

func TestSweepSkipsUnavailablePrice(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")
	saves := f.store.saves

	res := f.sweep(t)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, saves, f.store.saves)
	got := f.alert(t, "7", a.UniqueID)
	require.Equal(t, types.StateWatching, got.State)
	require.True(t, got.LastObservedPrice.Equal(d("100")))
}

func TestSweepTimeoutIsPerCall(t *testing.T) {
	f := newFixture()
	create(t, f.book, "7", bitcoin, "120", "100")
	f.prices.block = true

	start := time.Now()
	res := f.sweep(t)
	require.Equal(t, 1, res.Skipped)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestSweepFetchesEachAssetOnce(t *testing.T) {
	f := newFixture()
	create(t, f.book, "7", bitcoin, "120", "100")
	create(t, f.book, "8", bitcoin, "90", "100")
	create(t, f.book, "8", ethereum, "3000", "2000")

	f.prices.set(bitcoin.ID, "105")
	f.prices.set(ethereum.ID, "2100")
	res := f.sweep(t)
	require.Equal(t, 3, res.Checked)
	require.Equal(t, 1, f.prices.calls[bitcoin.ID])
	require.Equal(t, 1, f.prices.calls[ethereum.ID])
}

func TestSweepPersistsOnceForManyTriggers(t *testing.T) {
	f := newFixture()
	create(t, f.book, "7", bitcoin, "120", "100")
	create(t, f.book, "7", bitcoin, "121", "100")
	create(t, f.book, "8", bitcoin, "122", "100")
	saves := f.store.saves

	f.prices.set(bitcoin.ID, "130")
	res := f.sweep(t)
	require.Len(t, res.Triggered, 3)
	require.Equal(t, saves+1, f.store.saves)
}

func TestSweepPersistFailureDefersDelivery(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")

	f.prices.set(bitcoin.ID, "125")
	f.store.saveErr = errors.New("disk full")
	_, err := f.sched.Sweep(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, f.notifier.count(a.UniqueID), "nothing is delivered for an unpersisted transition")
	require.Equal(t, types.StateWatching, f.alert(t, "7", a.UniqueID).State)

	f.store.saveErr = nil
	res := f.sweep(t)
	require.Len(t, res.Triggered, 1)
	require.Equal(t, 1, f.notifier.count(a.UniqueID))
}

func TestSweepDeliveryFailureIsNotRetried(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")
	f.notifier.err = errors.New("chat not found")

	f.prices.set(bitcoin.ID, "125")
	f.sweep(t)
	require.Equal(t, types.StateTriggered, f.alert(t, "7", a.UniqueID).State)

	f.notifier.err = nil
	f.prices.set(bitcoin.ID, "126")
	f.sweep(t)
	require.Equal(t, 1, f.notifier.count(a.UniqueID))
}

func TestSweepRespectsDeletionDuringFetch(t *testing.T) {
	f := newFixture()
	a := create(t, f.book, "7", bitcoin, "120", "100")
	f.prices.set(bitcoin.ID, "125")

	f.prices.hook = func(string) {
		_, err := f.book.DeleteByVisibleIndex(context.Background(), "7", 1)
		require.NoError(t, err)
	}
	res := f.sweep(t)
	require.Empty(t, res.Triggered)
	require.Equal(t, 0, f.notifier.count(a.UniqueID))
	_, ok := f.store.snapshot()["7"]
	require.False(t, ok, "sweep must not resurrect a deleted alert")
}

func TestSweepKeepsAlertCreatedDuringFetch(t *testing.T) {
	f := newFixture()
	create(t, f.book, "7", bitcoin, "120", "100")
	f.prices.set(bitcoin.ID, "110")

	once := sync.Once{}
	f.prices.hook = func(string) {
		once.Do(func() { create(t, f.book, "9", ethereum, "3000", "2000") })
	}
	f.sweep(t)
	require.Len(t, f.store.snapshot()["9"], 1)
}

func TestSweepEmpty(t *testing.T) {
	f := newFixture()
	res := f.sweep(t)
	require.Equal(t, 0, res.Checked)
	require.Equal(t, 0, f.store.saves)
}
