package price

import (
	"context"
	"sort"
	"strings"

	"crypto-alert-bot/lib/helpers"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const quoteAsset = "USDT"

// MarketRow is one line of the market board.
type MarketRow struct {
	Symbol        string
	Base          string
	Last          decimal.Decimal
	ChangePercent decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	QuoteVolume   decimal.Decimal
}

// StatsLister returns the 24h statistics of every exchange pair.
type StatsLister interface {
	ListPriceChangeStats(ctx context.Context) ([]*binance.PriceChangeStats, error)
}

type binanceStats struct {
	client *binance.Client
}

func (s binanceStats) ListPriceChangeStats(ctx context.Context) ([]*binance.PriceChangeStats, error) {
	return s.client.NewListPriceChangeStatsService().Do(ctx)
}

// Board ranks USDT pairs by 24h quote volume.
type Board struct {
	stats    StatsLister
	attempts int
	backoff  *backoff.Backoff
}

// NewBinanceStats wraps a public binance client; no key is needed for market data.
func NewBinanceStats() StatsLister {
	return binanceStats{client: binance.NewClient("", "")}
}

func NewBoard(stats StatsLister) *Board {
	return &Board{stats: stats, attempts: 3, backoff: helpers.NewBackoff()}
}

// Top returns the n most traded USDT pairs, highest quote volume first.
func (b *Board) Top(ctx context.Context, n int) ([]MarketRow, error) {
	var stats []*binance.PriceChangeStats
	err := helpers.Retry(ctx, b.attempts, b.backoff, "market board", func(ctx context.Context) (err error) {
		stats, err = b.stats.ListPriceChangeStats(ctx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list 24h stats")
	}

	rows := make([]MarketRow, 0, len(stats))
	for _, s := range stats {
		if s == nil || !strings.HasSuffix(s.Symbol, quoteAsset) || s.Symbol == quoteAsset {
			continue
		}
		row, err := toRow(s)
		if err != nil {
			log.Debugf("Skipping %s: %v", s.Symbol, err)
			continue
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].QuoteVolume.GreaterThan(rows[j].QuoteVolume)
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

// Lookup returns the 24h row of a single base asset, e.g. "BTC".
func (b *Board) Lookup(ctx context.Context, base string) (*MarketRow, error) {
	rows, err := b.Top(ctx, 0)
	if err != nil {
		return nil, err
	}
	want := strings.ToUpper(strings.TrimSpace(base)) + quoteAsset
	for i := range rows {
		if rows[i].Symbol == want {
			return &rows[i], nil
		}
	}
	return nil, errors.Errorf("no %s market for %s", quoteAsset, base)
}

func toRow(s *binance.PriceChangeStats) (MarketRow, error) {
	var (
		row MarketRow
		err error
	)
	row.Symbol = s.Symbol
	row.Base = strings.TrimSuffix(s.Symbol, quoteAsset)
	if row.Last, err = decimal.NewFromString(s.LastPrice); err != nil {
		return row, errors.Wrap(err, "last price")
	}
	if row.ChangePercent, err = decimal.NewFromString(s.PriceChangePercent); err != nil {
		return row, errors.Wrap(err, "change percent")
	}
	if row.High, err = decimal.NewFromString(s.HighPrice); err != nil {
		return row, errors.Wrap(err, "high price")
	}
	if row.Low, err = decimal.NewFromString(s.LowPrice); err != nil {
		return row, errors.Wrap(err, "low price")
	}
	if row.QuoteVolume, err = decimal.NewFromString(s.QuoteVolume); err != nil {
		return row, errors.Wrap(err, "quote volume")
	}
	return row, nil
}
