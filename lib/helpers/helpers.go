package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
	hundred  = decimal.NewFromInt(100)
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS picks the number of decimals from the magnitude of price.
func FormatPriceUS(price float64, escapeMarkdown bool) string {
	decimals := 6

	if price >= 1000 {
		decimals = 0
	} else if price > 1.2 {
		decimals = 2
	} else if price < 0.00001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", decimals, price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatPrice renders a USD amount with thousands separators, e.g. "$64,250.5000".
// Sub-cent prices keep up to eight decimals.
func FormatPrice(price decimal.Decimal) string {
	digits := 4
	if !price.IsZero() && price.Abs().LessThan(decimal.New(1, -2)) {
		digits = 8
	}
	f, _ := price.Round(int32(digits)).Float64()
	return "$" + humanize.FormatFloat(fmt.Sprintf("#,###.%s", strings.Repeat("#", digits)), f)
}

// FormatVolume shortens large amounts: "$1.23B", "$4.50M", "$7.00K".
func FormatVolume(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(billion):
		return "$" + v.Div(billion).StringFixed(2) + "B"
	case v.GreaterThanOrEqual(million):
		return "$" + v.Div(million).StringFixed(2) + "M"
	case v.GreaterThanOrEqual(thousand):
		return "$" + v.Div(thousand).StringFixed(2) + "K"
	}
	return "$" + v.StringFixed(2)
}

// FormatPercent renders a signed percentage with two decimals, e.g. "+2.50%".
func FormatPercent(p decimal.Decimal) string {
	s := p.StringFixed(2)
	if p.Sign() >= 0 {
		s = "+" + s
	}
	return s + "%"
}

// PercentChange returns (to - from) / from * 100, or zero when from is zero.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

// FormatAgo renders t relative to now, e.g. "3 hours ago".
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
