package commands

import (
	"strings"

	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/shopspring/decimal"
)

var activityLevels = []struct {
	min   decimal.Decimal
	label string
}{
	{decimal.NewFromInt(1_000_000_000), "🔥🔥 VERY HIGH VOLUME"},
	{decimal.NewFromInt(500_000_000), "🔥 HIGH VOLUME"},
	{decimal.NewFromInt(100_000_000), "⚡ ACTIVE"},
	{decimal.NewFromInt(50_000_000), "📊 MODERATE"},
}

// ActivityLevel buckets a 24h quote volume.
func ActivityLevel(volume decimal.Decimal) string {
	for _, l := range activityLevels {
		if volume.GreaterThan(l.min) {
			return l.label
		}
	}
	return "💎 LOW VOLUME"
}

func formatVolume(coin types.Coin, row price.MarketRow) string {
	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("*%s VOLUME*\n\n", title(coin)))
	b.WriteString(translation.Translate("24h Volume: *%s*\n", e(helpers.FormatVolume(row.QuoteVolume))))
	if row.Symbol != "" {
		b.WriteString(translation.Translate("Pair: `%s`\n", row.Symbol))
	}
	b.WriteString(translation.Translate("Activity Level: %s\n", ActivityLevel(row.QuoteVolume)))
	return b.String()
}
