package commands

import (
	"strings"

	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/shopspring/decimal"
)

func moveLine(label string, change decimal.Decimal) string {
	dot := "🟢"
	if change.IsNegative() {
		dot = "🔴"
	}
	return translation.Translate("%s: *%s* %s\n", label, helpers.EscapeMarkdownV2(helpers.FormatPercent(change)), dot)
}

// FormatInfo renders the aggregator quote of a coin: market cap and the
// 1h, 24h and 7d moves.
func FormatInfo(coin types.Coin, q *price.Quote) string {
	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("ℹ️ *%s INFO*\n\n", title(coin)))
	b.WriteString(translation.Translate("Price: *%s*\n", e(helpers.FormatPrice(q.Price))))
	if coin.Rank > 0 {
		b.WriteString(translation.Translate("Rank: \\#%d\n", coin.Rank))
	}
	b.WriteString(translation.Translate("Market Cap: *%s*\n", e(helpers.FormatVolume(q.MarketCap))))
	b.WriteString(translation.Translate("24h Volume: %s\n\n", e(helpers.FormatVolume(q.Volume24h))))
	b.WriteString(moveLine("1h", q.PercentChange1h))
	b.WriteString(moveLine("24h", q.PercentChange24h))
	b.WriteString(moveLine("7d", q.PercentChange7d))
	b.WriteString(translation.Translate("\nID: `%s`", coin.ID))
	return b.String()
}
