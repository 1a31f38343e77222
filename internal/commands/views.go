package commands

import (
	"fmt"
	"strings"

	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/pkg/errors"
)

// ViewKind selects how a coin is presented.
type ViewKind int

const (
	ViewSummary ViewKind = iota
	ViewPrice
	ViewVolume
	ViewHighLow
	ViewSupportResistance
	ViewSupport
	ViewResistance
	ViewChart
	ViewInfo
)

var viewAliases = map[string]ViewKind{
	"":                  ViewSummary,
	"info":              ViewInfo,
	"i":                 ViewInfo,
	"mcap":              ViewInfo,
	"marketcap":         ViewInfo,
	"price":             ViewPrice,
	"p":                 ViewPrice,
	"volume":            ViewVolume,
	"vol":               ViewVolume,
	"v":                 ViewVolume,
	"h/l":               ViewHighLow,
	"hl":                ViewHighLow,
	"highlow":           ViewHighLow,
	"s/r":               ViewSupportResistance,
	"sr":                ViewSupportResistance,
	"supportresistance": ViewSupportResistance,
	"support":           ViewSupport,
	"resistance":        ViewResistance,
	"chart":             ViewChart,
	"c":                 ViewChart,
}

var ErrUnknownView = errors.New("unknown view")

// ErrNoRange is returned for range based views when the market has no 24h
// high and low.
var ErrNoRange = errors.New("no 24h range available")

func ParseViewKind(s string) (ViewKind, error) {
	k, ok := viewAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return ViewSummary, errors.Wrapf(ErrUnknownView, "%q", s)
	}
	return k, nil
}

func (k ViewKind) String() string {
	switch k {
	case ViewSummary:
		return "summary"
	case ViewPrice:
		return "price"
	case ViewVolume:
		return "volume"
	case ViewHighLow:
		return "highlow"
	case ViewSupportResistance:
		return "sr"
	case ViewSupport:
		return "support"
	case ViewResistance:
		return "resistance"
	case ViewChart:
		return "chart"
	case ViewInfo:
		return "info"
	}
	return fmt.Sprintf("ViewKind(%d)", int(k))
}

// Format renders the text views built from a market row. The chart view is
// an image and is rendered by RenderChart instead; the info view needs a
// quote and is rendered by FormatInfo.
func Format(kind ViewKind, coin types.Coin, row price.MarketRow) (string, error) {
	switch kind {
	case ViewSummary:
		return formatSummary(coin, row), nil
	case ViewPrice:
		return formatPrice(coin, row), nil
	case ViewVolume:
		return formatVolume(coin, row), nil
	case ViewHighLow:
		return formatHighLow(coin, row)
	case ViewSupportResistance:
		return formatSupportResistance(coin, row)
	case ViewSupport:
		return formatSupport(coin, row)
	case ViewResistance:
		return formatResistance(coin, row)
	}
	return "", errors.Wrapf(ErrUnknownView, "%s is not a text view", kind)
}

func title(coin types.Coin) string {
	return fmt.Sprintf("%s \\(%s\\)", helpers.EscapeMarkdownV2(coin.Name), helpers.EscapeMarkdownV2(strings.ToUpper(coin.Symbol)))
}

func formatSummary(coin types.Coin, row price.MarketRow) string {
	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("*%s*\n\n", title(coin)))
	b.WriteString(translation.Translate("Price: *%s*\n", e(helpers.FormatPrice(row.Last))))
	b.WriteString(translation.Translate("24h Change: *%s* %s\n", e(helpers.FormatPercent(row.ChangePercent)), changeDot(row)))
	b.WriteString(translation.Translate("Market Mood: %s\n", e(Mood(row.ChangePercent))))
	if hasRange(row) {
		b.WriteString(translation.Translate("24h High: %s\n", e(helpers.FormatPrice(row.High))))
		b.WriteString(translation.Translate("24h Low: %s\n", e(helpers.FormatPrice(row.Low))))
	}
	b.WriteString(translation.Translate("24h Volume: %s\n\n", e(helpers.FormatVolume(row.QuoteVolume))))

	sym := strings.ToLower(coin.Symbol)
	b.WriteString(e(translation.Translate(
		"/price %s info · price · volume · hl · sr · chart\n/set_alert %s [price]", sym, sym)))
	return b.String()
}
