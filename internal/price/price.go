package price

import (
	"context"
	"net/http"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Quote is the USD market data of one coin.
type Quote struct {
	ID               string
	Name             string
	Symbol           string
	Price            decimal.Decimal
	Volume24h        decimal.Decimal
	MarketCap        decimal.Decimal
	PercentChange1h  decimal.Decimal
	PercentChange24h decimal.Decimal
	PercentChange7d  decimal.Decimal
}

// HistoryPoint is one sample of a coin's price history.
type HistoryPoint struct {
	Time  time.Time
	Price float64
}

// TickerClient is the part of the coinpaprika ticker API the source uses.
type TickerClient interface {
	GetByID(coinID string, options *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error)
	GetHistoricalTickersByID(coinID string, options *coinpaprika.TickersHistoricalOptions) ([]*coinpaprika.TickerHistorical, error)
}

// Paprika reads prices from coinpaprika, paced by a rate limiter. Every
// failure is reported as an error; callers treat it as "unavailable".
type Paprika struct {
	tickers TickerClient
	limiter *rate.Limiter
}

// NewClient builds a coinpaprika client whose requests are bounded by timeout.
func NewClient(apiKey string, timeout time.Duration) *coinpaprika.Client {
	httpClient := &http.Client{Timeout: timeout}
	if apiKey != "" {
		return coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiKey))
	}
	return coinpaprika.NewClient(httpClient)
}

func NewPaprika(tickers TickerClient, perSecond float64) *Paprika {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Paprika{tickers: tickers, limiter: rate.NewLimiter(limit, 1)}
}

// call runs fn once the limiter allows it and gives up when ctx is done. The
// client has no context support, so a cancelled call keeps running in the
// background until its http timeout.
func (p *Paprika) call(ctx context.Context, fn func() error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Paprika) Quote(ctx context.Context, assetID string) (*Quote, error) {
	var ticker *coinpaprika.Ticker
	err := p.call(ctx, func() (err error) {
		ticker, err = p.tickers.GetByID(assetID, &coinpaprika.TickersOptions{Quotes: "USD"})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not get ticker %s", assetID)
	}
	if ticker == nil || ticker.Quotes == nil {
		return nil, errors.Errorf("ticker %s has no quotes", assetID)
	}
	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return nil, errors.Errorf("ticker %s has no USD price", assetID)
	}

	q := &Quote{
		ID:               assetID,
		Name:             deref(ticker.Name),
		Symbol:           deref(ticker.Symbol),
		Price:            decimal.NewFromFloat(*usd.Price),
		Volume24h:        fromFloat(usd.Volume24h),
		MarketCap:        fromFloat(usd.MarketCap),
		PercentChange1h:  fromFloat(usd.PercentChange1h),
		PercentChange24h: fromFloat(usd.PercentChange24h),
		PercentChange7d:  fromFloat(usd.PercentChange7d),
	}
	log.Debugf("Quote for %s: %s USD", assetID, q.Price)
	return q, nil
}

func (p *Paprika) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	q, err := p.Quote(ctx, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

func (p *Paprika) GetPriceChange24h(ctx context.Context, assetID string) (decimal.Decimal, error) {
	q, err := p.Quote(ctx, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return q.PercentChange24h, nil
}

// History returns hourly prices starting at since.
func (p *Paprika) History(ctx context.Context, assetID string, since time.Time) ([]HistoryPoint, error) {
	var tickers []*coinpaprika.TickerHistorical
	err := p.call(ctx, func() (err error) {
		tickers, err = p.tickers.GetHistoricalTickersByID(assetID, &coinpaprika.TickersHistoricalOptions{
			Quote:    "USD",
			Limit:    200,
			Interval: "1h",
			Start:    since,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not get history of %s", assetID)
	}

	points := make([]HistoryPoint, 0, len(tickers))
	for _, t := range tickers {
		if t == nil || t.Timestamp == nil || t.Price == nil {
			continue
		}
		points = append(points, HistoryPoint{Time: *t.Timestamp, Price: *t.Price})
	}
	return points, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func fromFloat(f *float64) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*f)
}
