package notify

import (
	"fmt"
	"strings"

	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"
)

var sourceEmoji = map[string]string{
	"CoinDesk":      "📰",
	"CoinTelegraph": "📖",
	"CryptoPotato":  "🥔",
}

// Mention links to a telegram user; falls back to the id when the name is unknown.
func Mention(owner, name string) string {
	if name == "" {
		name = owner
	}
	return fmt.Sprintf("[%s](tg://user?id=%s)", helpers.EscapeMarkdownV2(name), owner)
}

func FormatTriggered(a types.Alert) string {
	up := a.TriggerDirection == types.DirectionAbove
	reaction, direction := "📉🛡️💎", "BELOW"
	if up {
		reaction, direction = "🚀📈🎉", "ABOVE"
	}
	change := helpers.PercentChange(a.TargetPrice, a.TriggeredPrice)

	return translation.Translate(
		"🚨 *PRICE ALERT TRIGGERED\\!*\n\n%s *%s \\(%s\\)* %s\nTarget: *%s*\nCurrent: *%s*\nChange: *%s*\nDirection: *%s*\n\nCongrats %s\\! Time to make moves\\!",
		reaction,
		helpers.EscapeMarkdownV2(a.DisplayName),
		helpers.EscapeMarkdownV2(a.DisplaySymbol),
		reaction,
		helpers.EscapeMarkdownV2(helpers.FormatPrice(a.TargetPrice)),
		helpers.EscapeMarkdownV2(helpers.FormatPrice(a.TriggeredPrice)),
		helpers.EscapeMarkdownV2(helpers.FormatPercent(change)),
		direction,
		Mention(a.Owner, a.OwnerName),
	)
}

func FormatCreatedNotice(a types.Alert) string {
	return translation.Translate(
		"🎯 New alert set by %s: *%s* at *%s*",
		Mention(a.Owner, a.OwnerName),
		helpers.EscapeMarkdownV2(a.DisplayName),
		helpers.EscapeMarkdownV2(helpers.FormatPrice(a.TargetPrice)),
	)
}

func FormatNews(item types.NewsItem) string {
	emoji, ok := sourceEmoji[item.Source]
	if !ok {
		emoji = "🔐"
	}
	source := helpers.EscapeMarkdownV2(strings.ToUpper(item.Source))
	return translation.Translate(
		"%s *%s UPDATE* %s\n\n[%s](%s)\n\n_Stay informed\\! Source: %s_",
		emoji, source, emoji,
		helpers.EscapeMarkdownV2(item.Title),
		escapeLink(item.Link),
		helpers.EscapeMarkdownV2(item.Source),
	)
}

// escapeLink escapes the characters MarkdownV2 requires inside (...) links.
func escapeLink(link string) string {
	return strings.NewReplacer("\\", "\\\\", ")", "\\)").Replace(link)
}
