package commands

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingCoin  = errors.New("missing coin")
	ErrMissingPrice = errors.New("missing price")
)

var tokenSeparator = regexp.MustCompile(`[\s\-]+`)

// ParseAlertInput splits "<coin words> <price>" into the coin identifier and
// the target price. Any token that reads as a number once "$" and ","
// are removed is taken as the price; when there are several the last one
// wins. Everything else is part of the coin identifier.
func ParseAlertInput(input string) (string, decimal.Decimal, error) {
	var (
		words []string
		price decimal.Decimal
		found bool
	)
	for _, part := range tokenSeparator.Split(strings.ToLower(strings.TrimSpace(input)), -1) {
		if part == "" {
			continue
		}
		clean := strings.NewReplacer("$", "", ",", "").Replace(part)
		if clean != "" {
			if p, err := decimal.NewFromString(clean); err == nil {
				price, found = p, true
				continue
			}
		}
		words = append(words, part)
	}

	coin := strings.Join(words, " ")
	if coin == "" {
		return "", decimal.Zero, ErrMissingCoin
	}
	if !found {
		return coin, decimal.Zero, ErrMissingPrice
	}
	return coin, price, nil
}
