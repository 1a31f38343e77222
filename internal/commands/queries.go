package commands

import (
	"context"
	"time"

	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const chartWindow = 7 * 24 * time.Hour

// ErrNoMarketData is returned when neither market source knows the coin.
var ErrNoMarketData = errors.New("no market data")

type Resolver interface {
	Resolve(identifier string) (types.Coin, error)
}

// Markets returns the exchange 24h row of a base asset.
type Markets interface {
	Lookup(ctx context.Context, base string) (*price.MarketRow, error)
}

// Quotes is the aggregator side: a single quote and price history.
type Quotes interface {
	Quote(ctx context.Context, assetID string) (*price.Quote, error)
	History(ctx context.Context, assetID string, since time.Time) ([]price.HistoryPoint, error)
}

// Service answers the per-coin commands.
type Service struct {
	coins   Resolver
	markets Markets
	quotes  Quotes
	charts  *ChartCache
	now     func() time.Time
}

func NewService(coins Resolver, markets Markets, quotes Quotes, charts *ChartCache) *Service {
	return &Service{
		coins:   coins,
		markets: markets,
		quotes:  quotes,
		charts:  charts,
		now:     time.Now,
	}
}

func (s *Service) Coin(identifier string) (types.Coin, error) {
	return s.coins.Resolve(identifier)
}

// Market prefers the exchange row, which carries the 24h range. Coins not
// listed on the exchange fall back to the aggregator quote without a range.
func (s *Service) Market(ctx context.Context, coin types.Coin) (price.MarketRow, error) {
	row, err := s.markets.Lookup(ctx, coin.Symbol)
	if err == nil {
		return *row, nil
	}
	log.Debugf("no exchange market for %s, using quote: %v", coin.Symbol, err)

	q, qerr := s.quotes.Quote(ctx, coin.ID)
	if qerr != nil {
		return price.MarketRow{}, errors.Wrapf(ErrNoMarketData, "%s: %v", coin.ID, qerr)
	}
	return price.MarketRow{
		Base:          coin.Symbol,
		Last:          q.Price,
		ChangePercent: q.PercentChange24h,
		QuoteVolume:   q.Volume24h,
	}, nil
}

// View resolves the coin and formats one of the text views.
func (s *Service) View(ctx context.Context, identifier string, kind ViewKind) (string, error) {
	coin, err := s.Coin(identifier)
	if err != nil {
		return "", err
	}
	if kind == ViewInfo {
		return s.info(ctx, coin)
	}
	row, err := s.Market(ctx, coin)
	if err != nil {
		return "", err
	}
	return Format(kind, coin, row)
}

func (s *Service) info(ctx context.Context, coin types.Coin) (string, error) {
	q, err := s.quotes.Quote(ctx, coin.ID)
	if err != nil {
		return "", errors.Wrapf(ErrNoMarketData, "%s: %v", coin.ID, err)
	}
	return FormatInfo(coin, q), nil
}

// Chart returns the 7 day chart of a coin and its caption.
func (s *Service) Chart(ctx context.Context, identifier string) ([]byte, string, error) {
	coin, err := s.Coin(identifier)
	if err != nil {
		return nil, "", err
	}
	if item, found := s.charts.Get(coin.ID); found {
		log.Debugf("returning cached chart for %s", coin.ID)
		return item.ChartData, item.Caption, nil
	}

	points, err := s.quotes.History(ctx, coin.ID, s.now().Add(-chartWindow))
	if err != nil {
		return nil, "", errors.Wrapf(err, "history of %s", coin.ID)
	}
	data, err := RenderChart(coin, points)
	if err != nil {
		return nil, "", err
	}

	last := points[len(points)-1].Price
	caption := translation.Translate("*%s* 7 days\nLast: *$%s*",
		title(coin), helpers.FormatPriceUS(last, true))
	s.charts.Set(coin.ID, data, caption)
	return data, caption, nil
}
