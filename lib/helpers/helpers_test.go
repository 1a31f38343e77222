package helpers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, "a\\\\b \\(c\\) \\+1\\.5\\!", EscapeMarkdownV2("a\\b (c) +1.5!"))
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"64250.5", "$64,250.5000"},
		{"1", "$1.0000"},
		{"0.00001234", "$0.00001234"},
		{"0", "$0.0000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPrice(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatPriceUS(t *testing.T) {
	assert.Equal(t, "64,250", FormatPriceUS(64250.4, false))
	assert.Equal(t, "2.50", FormatPriceUS(2.5, false))
	assert.Equal(t, "0\\.500000", FormatPriceUS(0.5, true))
}

func TestFormatVolumeAndPercent(t *testing.T) {
	assert.Equal(t, "$1.23B", FormatVolume(decimal.RequireFromString("1234000000")))
	assert.Equal(t, "$4.50M", FormatVolume(decimal.RequireFromString("4500000")))
	assert.Equal(t, "$7.00K", FormatVolume(decimal.RequireFromString("7000")))
	assert.Equal(t, "$12.00", FormatVolume(decimal.RequireFromString("12")))

	assert.Equal(t, "+2.50%", FormatPercent(decimal.RequireFromString("2.5")))
	assert.Equal(t, "-0.10%", FormatPercent(decimal.RequireFromString("-0.1")))
	assert.Equal(t, "+0.00%", FormatPercent(decimal.Zero))
}

func TestPercentChange(t *testing.T) {
	got := PercentChange(decimal.NewFromInt(100), decimal.NewFromInt(110))
	assert.True(t, got.Equal(decimal.NewFromInt(10)), got.String())
	assert.True(t, PercentChange(decimal.Zero, decimal.NewFromInt(5)).IsZero())
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAgo(time.Time{}, now))
	assert.Equal(t, "3 hours ago", FormatAgo(now.Add(-3*time.Hour), now))
}

func quickBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, quickBackoff(), "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 2, quickBackoff(), "down", func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryLeavesSharedBackoffUntouched(t *testing.T) {
	shared := quickBackoff()
	shared.Duration()
	shared.Duration()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Retry(context.Background(), 3, shared, "shared", func(context.Context) error {
				return errors.New("down")
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, float64(2), shared.Attempt())
}
