package commands

import (
	"strings"

	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/shopspring/decimal"
)

var (
	ten       = decimal.NewFromInt(10)
	five      = decimal.NewFromInt(5)
	minusFive = decimal.NewFromInt(-5)
)

// Mood describes a 24h change in a few words.
func Mood(change decimal.Decimal) string {
	switch {
	case change.GreaterThan(ten):
		return "🚀 PUMPING HARD!"
	case change.GreaterThan(five):
		return "📈 LOOKING GOOD!"
	case change.IsPositive():
		return "🐢 SLOW & STEADY!"
	case change.GreaterThan(minusFive):
		return "🛡️ HOLDING STRONG!"
	}
	return "🐻 BEAR ATTACK!"
}

func changeDot(row price.MarketRow) string {
	if row.ChangePercent.Sign() >= 0 {
		return "🟢"
	}
	return "🔴"
}

func formatPrice(coin types.Coin, row price.MarketRow) string {
	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("*%s PRICE*\n\n", title(coin)))
	b.WriteString(translation.Translate("*%s*\n", e(helpers.FormatPrice(row.Last))))
	if !row.ChangePercent.IsZero() {
		arrow := "📈🚀"
		if row.ChangePercent.IsNegative() {
			arrow = "📉🛡️"
		}
		b.WriteString(translation.Translate("24h Change: %s *%s*\n", arrow, e(helpers.FormatPercent(row.ChangePercent))))
		b.WriteString(translation.Translate("Mood: %s\n", e(Mood(row.ChangePercent))))
	}
	return b.String()
}
