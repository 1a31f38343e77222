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
	hundred          = decimal.NewFromInt(100)
	supportRatios    = []decimal.Decimal{decimal.RequireFromString("0.25"), decimal.RequireFromString("0.15"), decimal.RequireFromString("0.05")}
	resistanceRatios = []decimal.Decimal{decimal.RequireFromString("0.75"), decimal.RequireFromString("0.85"), decimal.RequireFromString("0.95")}
)

// Levels are estimated support and resistance prices derived from the 24h range.
// Support is ordered nearest first (S1 highest), resistance nearest first (R1 lowest).
type Levels struct {
	Support    []decimal.Decimal
	Resistance []decimal.Decimal
}

func hasRange(row price.MarketRow) bool {
	return row.High.IsPositive() && row.Low.IsPositive() && row.High.GreaterThan(row.Low)
}

// RangePosition is where the last price sits in the 24h range, 0 at the low
// and 100 at the high. Prices outside the range are clamped.
func RangePosition(row price.MarketRow) (decimal.Decimal, error) {
	if !hasRange(row) {
		return decimal.Zero, ErrNoRange
	}
	pos := row.Last.Sub(row.Low).Div(row.High.Sub(row.Low)).Mul(hundred)
	if pos.IsNegative() {
		return decimal.Zero, nil
	}
	if pos.GreaterThan(hundred) {
		return hundred, nil
	}
	return pos, nil
}

func SupportResistance(row price.MarketRow) (Levels, error) {
	if !hasRange(row) {
		return Levels{}, ErrNoRange
	}
	span := row.High.Sub(row.Low)
	var l Levels
	for _, r := range supportRatios {
		l.Support = append(l.Support, row.Low.Add(span.Mul(r)))
	}
	for _, r := range resistanceRatios {
		l.Resistance = append(l.Resistance, row.Low.Add(span.Mul(r)))
	}
	return l, nil
}

func formatHighLow(coin types.Coin, row price.MarketRow) (string, error) {
	pos, err := RangePosition(row)
	if err != nil {
		return "", err
	}
	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("*%s 24H RANGE*\n\n", title(coin)))
	b.WriteString(translation.Translate("High: *%s*\n", e(helpers.FormatPrice(row.High))))
	b.WriteString(translation.Translate("Low: *%s*\n", e(helpers.FormatPrice(row.Low))))
	b.WriteString(translation.Translate("Current: *%s*\n", e(helpers.FormatPrice(row.Last))))
	b.WriteString(translation.Translate("Position: *%s* of range\n", e(pos.StringFixed(1)+"%")))
	b.WriteString(rangeHint(pos))
	return b.String(), nil
}

func rangeHint(pos decimal.Decimal) string {
	switch {
	case pos.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return translation.Translate("🔝 Trading near the daily high\n")
	case pos.LessThanOrEqual(decimal.NewFromInt(20)):
		return translation.Translate("🔻 Trading near the daily low\n")
	}
	return translation.Translate("↔️ Trading mid range\n")
}

func writeLevels(b *strings.Builder, prefix string, levels []decimal.Decimal) {
	for i, lvl := range levels {
		b.WriteString(translation.Translate("%s%d: `%s`\n", prefix, i+1, helpers.FormatPrice(lvl)))
	}
}

func formatSupportResistance(coin types.Coin, row price.MarketRow) (string, error) {
	l, err := SupportResistance(row)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(translation.Translate("*%s SUPPORT & RESISTANCE*\n\n", title(coin)))
	b.WriteString(translation.Translate("Current: *%s*\n\n", helpers.EscapeMarkdownV2(helpers.FormatPrice(row.Last))))
	b.WriteString(translation.Translate("🔴 *Resistance*\n"))
	writeLevels(&b, "R", l.Resistance)
	b.WriteString(translation.Translate("\n🟢 *Support*\n"))
	writeLevels(&b, "S", l.Support)
	b.WriteString(levelsDisclaimer())
	return b.String(), nil
}

func formatSupport(coin types.Coin, row price.MarketRow) (string, error) {
	l, err := SupportResistance(row)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(translation.Translate("*%s SUPPORT LEVELS*\n\n", title(coin)))
	b.WriteString(translation.Translate("Current: *%s*\n\n", helpers.EscapeMarkdownV2(helpers.FormatPrice(row.Last))))
	writeLevels(&b, "S", l.Support)
	b.WriteString(levelsDisclaimer())
	return b.String(), nil
}

func formatResistance(coin types.Coin, row price.MarketRow) (string, error) {
	l, err := SupportResistance(row)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(translation.Translate("*%s RESISTANCE LEVELS*\n\n", title(coin)))
	b.WriteString(translation.Translate("Current: *%s*\n\n", helpers.EscapeMarkdownV2(helpers.FormatPrice(row.Last))))
	writeLevels(&b, "R", l.Resistance)
	b.WriteString(levelsDisclaimer())
	return b.String(), nil
}

func levelsDisclaimer() string {
	return translation.Translate("\n_Estimated from the 24h range, not financial advice\\._")
}
