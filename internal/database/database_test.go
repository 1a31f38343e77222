package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func requireSameCollection(t *testing.T, want, got types.Collection) {
	t.Helper()
	require.Len(t, got, len(want))
	for owner, alerts := range want {
		require.Len(t, got[owner], len(alerts), "owner %s", owner)
		for i, w := range alerts {
			g := got[owner][i]
			require.Equal(t, w.UniqueID, g.UniqueID)
			require.Equal(t, w.Owner, g.Owner)
			require.Equal(t, w.OwnerName, g.OwnerName)
			require.Equal(t, w.AssetID, g.AssetID)
			require.Equal(t, w.DisplaySymbol, g.DisplaySymbol)
			require.Equal(t, w.DisplayName, g.DisplayName)
			require.True(t, w.TargetPrice.Equal(g.TargetPrice), "target %s != %s", w.TargetPrice, g.TargetPrice)
			require.True(t, w.LastObservedPrice.Equal(g.LastObservedPrice))
			require.True(t, w.TriggeredPrice.Equal(g.TriggeredPrice))
			require.Equal(t, w.State, g.State)
			require.Equal(t, w.TriggerDirection, g.TriggerDirection)
			require.True(t, w.CreatedAt.Equal(g.CreatedAt))
			if w.TriggeredAt == nil {
				require.Nil(t, g.TriggeredAt)
			} else {
				require.NotNil(t, g.TriggeredAt)
				require.True(t, w.TriggeredAt.Equal(*g.TriggeredAt))
			}
			require.Equal(t, w.DeliveryChannel, g.DeliveryChannel)
		}
	}
}

func sampleCollection() types.Collection {
	created := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	triggered := created.Add(90 * time.Minute)
	return types.Collection{
		"1001": {
			{
				UniqueID: "b", Owner: "1001", OwnerName: "alice", AssetID: "btc-bitcoin",
				DisplaySymbol: "BTC", DisplayName: "Bitcoin",
				TargetPrice: decimal.RequireFromString("120.50"), LastObservedPrice: decimal.RequireFromString("125"),
				TriggeredPrice: decimal.RequireFromString("125"),
				State:          types.StateTriggered, TriggerDirection: types.DirectionAbove,
				CreatedAt: created, TriggeredAt: &triggered, DeliveryChannel: -100123,
			},
			{
				UniqueID: "a", Owner: "1001", OwnerName: "alice", AssetID: "eth-ethereum",
				DisplaySymbol: "ETH", DisplayName: "Ethereum",
				TargetPrice: decimal.RequireFromString("0.00000123"), LastObservedPrice: decimal.RequireFromString("0.000002"),
				State: types.StateWatching, CreatedAt: created.Add(time.Second), DeliveryChannel: 1001,
			},
		},
		"2002": {
			{
				UniqueID: "c", Owner: "2002", AssetID: "sol-solana", DisplaySymbol: "SOL", DisplayName: "Solana",
				TargetPrice: decimal.NewFromInt(200), LastObservedPrice: decimal.NewFromInt(150),
				State: types.StateWatching, CreatedAt: created, DeliveryChannel: 2002,
			},
		},
	}
}

func TestAlertStoreRoundTrip(t *testing.T) {
	db, _ := openTemp(t)
	store := db.Alerts()
	ctx := context.Background()

	want := sampleCollection()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	requireSameCollection(t, want, got)
}

func TestAlertStoreEmpty(t *testing.T) {
	db, _ := openTemp(t)
	store := db.Alerts()
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	require.NoError(t, store.Save(ctx, sampleCollection()))
	require.NoError(t, store.Save(ctx, types.Collection{}))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAlertStoreReplacesPreviousSnapshot(t *testing.T) {
	db, _ := openTemp(t)
	store := db.Alerts()
	ctx := context.Background()

	c := sampleCollection()
	require.NoError(t, store.Save(ctx, c))
	delete(c, "2002")
	require.NoError(t, store.Save(ctx, c))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	requireSameCollection(t, c, got)
}

func TestAlertStoreSurvivesReopen(t *testing.T) {
	db, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, db.Alerts().Save(ctx, sampleCollection()))
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Alerts().Load(ctx)
	require.NoError(t, err)
	requireSameCollection(t, sampleCollection(), got)
}

func TestAlertStoreSkipsCorruptRows(t *testing.T) {
	db, _ := openTemp(t)
	store := db.Alerts()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleCollection()))

	_, err := db.conn.Exec(`UPDATE alerts SET target_price = 'lots' WHERE unique_id = 'c';`)
	require.NoError(t, err)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got["1001"], 2)
	_, ok := got["2002"]
	require.False(t, ok)
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, not even close to one"), 0o644))

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Alerts().Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestMetrics(t *testing.T) {
	db, _ := openTemp(t)

	v, err := db.GetMetric("commands_processed")
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	require.NoError(t, db.SaveMetric("commands_processed", 12))
	require.NoError(t, db.SaveMetric("commands_processed", 15))
	v, err = db.GetMetric("commands_processed")
	require.NoError(t, err)
	require.Equal(t, 15.0, v)
}
