package directory

import (
	"context"
	"sort"

	"crypto-alert-bot/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
)

// CoinLister is the coinpaprika coins endpoint.
type CoinLister interface {
	List() ([]*coinpaprika.Coin, error)
}

// PaprikaFetcher reads the coin list from coinpaprika, ranked coins first.
type PaprikaFetcher struct {
	coins CoinLister
}

func NewPaprikaFetcher(coins CoinLister) *PaprikaFetcher {
	return &PaprikaFetcher{coins: coins}
}

func (f *PaprikaFetcher) FetchCoins(ctx context.Context) ([]types.Coin, error) {
	type result struct {
		coins []*coinpaprika.Coin
		err   error
	}
	done := make(chan result, 1)
	go func() {
		coins, err := f.coins.List()
		done <- result{coins, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "could not list coins")
	}

	out := make([]types.Coin, 0, len(r.coins))
	for _, c := range r.coins {
		if c == nil || c.ID == nil || c.Symbol == nil || c.Name == nil {
			continue
		}
		coin := types.Coin{ID: *c.ID, Symbol: *c.Symbol, Name: *c.Name}
		if c.Rank != nil {
			coin.Rank = *c.Rank
		}
		out = append(out, coin)
	}

	// Unranked coins (rank 0) go last.
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		if ri == 0 || rj == 0 {
			return ri != 0 && rj == 0
		}
		return ri < rj
	})
	return out, nil
}
