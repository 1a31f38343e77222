package alert

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	c       types.Collection
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{c: types.Collection{}}
}

func (m *memStore) Load(_ context.Context) (types.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Clone(), nil
}

func (m *memStore) Save(_ context.Context, c types.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.c = c.Clone()
	return nil
}

func (m *memStore) snapshot() types.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Clone()
}

var (
	bitcoin  = types.Coin{ID: "btc-bitcoin", Symbol: "BTC", Name: "Bitcoin"}
	ethereum = types.Coin{ID: "eth-ethereum", Symbol: "ETH", Name: "Ethereum"}
	epoch    = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

func newTestBook(store Store) *Book {
	n := 0
	return NewBook(store,
		WithClock(func() time.Time { return epoch }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func create(t *testing.T, b *Book, owner string, coin types.Coin, target, current string) types.Alert {
	t.Helper()
	a, err := b.Create(context.Background(), NewAlert{
		Owner:        owner,
		OwnerName:    "user" + owner,
		Coin:         coin,
		TargetPrice:  d(target),
		CurrentPrice: d(current),
		Channel:      -100,
	})
	require.NoError(t, err)
	return a
}

func TestBookCreate(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)

	a := create(t, b, "7", bitcoin, "120", "100")
	require.Equal(t, "id-1", a.UniqueID)
	require.Equal(t, types.StateWatching, a.State)
	require.True(t, a.LastObservedPrice.Equal(d("100")))
	require.True(t, a.CreatedAt.Equal(epoch))
	require.Nil(t, a.TriggeredAt)
	require.Equal(t, "BTC", a.DisplaySymbol)
	require.Equal(t, int64(-100), a.DeliveryChannel)

	c := store.snapshot()
	require.Len(t, c["7"], 1)
}

func TestBookCreateRejectsDuplicate(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)
	ctx := context.Background()

	create(t, b, "7", bitcoin, "120", "100")

	_, err := b.Create(ctx, NewAlert{Owner: "7", Coin: bitcoin, TargetPrice: d("120.00"), CurrentPrice: d("101")})
	require.ErrorIs(t, err, ErrDuplicateAlert)
	require.Len(t, store.snapshot()["7"], 1, "duplicate must not create a record")

	// Same pair for another owner, another asset or another target is fine.
	create(t, b, "8", bitcoin, "120", "100")
	create(t, b, "7", ethereum, "120", "100")
	create(t, b, "7", bitcoin, "121", "100")
}

func TestBookCreateAfterTrigger(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)

	create(t, b, "7", bitcoin, "120", "100")
	c := store.snapshot()
	c["7"][0].State = types.StateTriggered
	require.NoError(t, store.Save(context.Background(), c))

	create(t, b, "7", bitcoin, "120", "100")
	require.Len(t, store.snapshot()["7"], 2)
}

func TestBookCreateInvalidPrice(t *testing.T) {
	b := newTestBook(newMemStore())
	for _, target := range []string{"0", "-5"} {
		_, err := b.Create(context.Background(), NewAlert{Owner: "7", Coin: bitcoin, TargetPrice: d(target)})
		require.ErrorIs(t, err, ErrInvalidPrice)
	}
}

func TestBookCreateNeedsCurrentPrice(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)
	for _, current := range []string{"0", "-1"} {
		_, err := b.Create(context.Background(), NewAlert{Owner: "7", Coin: bitcoin, TargetPrice: d("120"), CurrentPrice: d(current)})
		require.ErrorIs(t, err, ErrPriceUnavailable)
	}
	require.Empty(t, store.snapshot())
	require.Equal(t, 0, store.saves)
}

func TestBookCreateSaveFailure(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	b := newTestBook(store)

	_, err := b.Create(context.Background(), NewAlert{Owner: "7", Coin: bitcoin, TargetPrice: d("1"), CurrentPrice: d("2")})
	require.Error(t, err)
	require.Empty(t, store.snapshot())
}

func TestBookListWatching(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)
	ctx := context.Background()

	create(t, b, "7", bitcoin, "120", "100")
	create(t, b, "7", bitcoin, "130", "100")
	create(t, b, "7", bitcoin, "140", "100")

	c := store.snapshot()
	c["7"][1].State = types.StateTriggered
	require.NoError(t, store.Save(ctx, c))

	list, err := b.ListWatching(ctx, "7")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "id-1", list[0].UniqueID)
	require.Equal(t, "id-3", list[1].UniqueID)

	list, err = b.ListWatching(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, list)
}

// TestBookDeleteByVisibleIndex interleaves TRIGGERED alerts with WATCHING ones
// and checks that every visible index removes exactly the alert shown there.
func TestBookDeleteByVisibleIndex(t *testing.T) {
	ctx := context.Background()

	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("index %d", k), func(t *testing.T) {
			store := newMemStore()
			b := newTestBook(store)

			// Storage order: T W T W W T, where T is triggered.
			for i := 0; i < 6; i++ {
				create(t, b, "7", bitcoin, fmt.Sprint(100+i), "50")
			}
			c := store.snapshot()
			for _, i := range []int{0, 2, 5} {
				c["7"][i].State = types.StateTriggered
			}
			require.NoError(t, store.Save(ctx, c))

			before, err := b.ListWatching(ctx, "7")
			require.NoError(t, err)
			require.Len(t, before, 3)

			deleted, err := b.DeleteByVisibleIndex(ctx, "7", k)
			require.NoError(t, err)
			require.Equal(t, before[k-1].UniqueID, deleted.UniqueID)

			after := store.snapshot()["7"]
			require.Len(t, after, 5)
			for _, a := range after {
				require.NotEqual(t, deleted.UniqueID, a.UniqueID)
			}

			triggered := 0
			for _, a := range after {
				if !a.IsWatching() {
					triggered++
				}
			}
			require.Equal(t, 3, triggered, "history must be kept")
		})
	}
}

func TestBookDeleteByVisibleIndexErrors(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)
	ctx := context.Background()

	_, err := b.DeleteByVisibleIndex(ctx, "7", 1)
	require.ErrorIs(t, err, ErrNoAlerts)

	create(t, b, "7", bitcoin, "120", "100")
	saves := store.saves

	for _, idx := range []int{0, -1, 2} {
		_, err = b.DeleteByVisibleIndex(ctx, "7", idx)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	require.Equal(t, saves, store.saves, "rejected deletes must not write")
}

func TestBookDeleteLastRemovesOwner(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)

	create(t, b, "7", bitcoin, "120", "100")
	_, err := b.DeleteByVisibleIndex(context.Background(), "7", 1)
	require.NoError(t, err)

	_, ok := store.snapshot()["7"]
	require.False(t, ok)
}

func TestBookClearForOwner(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)
	ctx := context.Background()

	create(t, b, "7", bitcoin, "120", "100")
	create(t, b, "7", ethereum, "3000", "2500")
	create(t, b, "8", bitcoin, "120", "100")

	n, err := b.ClearForOwner(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	c := store.snapshot()
	_, ok := c["7"]
	require.False(t, ok, "owner key must be removed")
	require.Len(t, c["8"], 1)

	_, err = b.ClearForOwner(ctx, "7")
	require.ErrorIs(t, err, ErrNoAlerts)
}

func TestBookApplyWithoutChangeDoesNotSave(t *testing.T) {
	store := newMemStore()
	b := newTestBook(store)
	create(t, b, "7", bitcoin, "120", "100")
	saves := store.saves

	err := b.Apply(context.Background(), func(types.Collection) (bool, error) { return false, nil })
	require.NoError(t, err)
	require.Equal(t, saves, store.saves)
}
