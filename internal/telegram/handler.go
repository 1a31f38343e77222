package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/commands"
	"crypto-alert-bot/internal/directory"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	searchLimit      = 10
	defaultNewsCount = 5
	maxNewsCount     = 10
	defaultTopN      = 10
)

// AlertBook is the alert collection as commands see it.
type AlertBook interface {
	Create(ctx context.Context, req alert.NewAlert) (types.Alert, error)
	ListWatching(ctx context.Context, owner string) ([]types.Alert, error)
	DeleteByVisibleIndex(ctx context.Context, owner string, index int) (types.Alert, error)
	ClearForOwner(ctx context.Context, owner string) (int, error)
	Snapshot(ctx context.Context) (types.Collection, error)
}

// Coins is the coin directory.
type Coins interface {
	Resolve(identifier string) (types.Coin, error)
	Search(query string, limit int) []types.Coin
	Refresh(ctx context.Context, force bool) (int, error)
	Len() int
	UpdatedAt() time.Time
}

// CoinViews renders the per-coin views.
type CoinViews interface {
	View(ctx context.Context, identifier string, kind commands.ViewKind) (string, error)
	Chart(ctx context.Context, identifier string) ([]byte, string, error)
}

// AlertAnnouncer is told about every new alert.
type AlertAnnouncer interface {
	AlertCreated(ctx context.Context, a types.Alert) error
}

// MarketBoard ranks the exchange markets by 24h volume.
type MarketBoard interface {
	Top(ctx context.Context, n int) ([]price.MarketRow, error)
}

type NewsSource interface {
	Latest(ctx context.Context) ([]types.NewsItem, error)
}

// Deps are the collaborators of the command handler.
type Deps struct {
	Book      AlertBook
	Coins     Coins
	Prices    alert.PriceSource
	Views     CoinViews
	Board     MarketBoard
	TopN      int
	Announcer AlertAnnouncer
	News      NewsSource
	NewsCache interface{ Len() int }
	Admins    []int64
}

// Handler turns commands into replies.
type Handler struct {
	deps    Deps
	started time.Time
	now     func() time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, started: time.Now(), now: time.Now}
}

func (h *Handler) Handle(ctx context.Context, r Request) Reply {
	log.Debugf("received command /%s %q from %d", r.Command, r.Args, r.UserID)

	switch r.Command {
	case "start", "help":
		return text(helpText())
	case "set_alert", "alert":
		return h.setAlert(ctx, r)
	case "my_alerts", "alerts":
		if strings.EqualFold(r.Args, "detailed") {
			return h.detailedAlerts(ctx, r)
		}
		return h.myAlerts(ctx, r)
	case "alerts_detailed":
		return h.detailedAlerts(ctx, r)
	case "delete_alert":
		return h.deleteAlert(ctx, r)
	case "clear_alerts":
		return h.clearAlerts(ctx, r)
	case "price", "p", "coin":
		return h.price(ctx, r)
	case "prices":
		return h.board(ctx, commands.FormatBoard)
	case "volume", "volumes":
		return h.board(ctx, commands.FormatVolumeBoard)
	case "coin_info", "info":
		return h.info(ctx, r.Args)
	case "chart", "c":
		return h.chart(ctx, r.Args)
	case "search":
		return h.search(r)
	case "news":
		return h.news(ctx, r)
	case "stats":
		return h.stats(ctx)
	case "refresh_coins":
		return h.refreshCoins(ctx, r)
	}
	return text(helpText())
}

func text(s string) Reply {
	return Reply{Text: s}
}

func escaped(msgID string, vars ...interface{}) Reply {
	return text(helpers.EscapeMarkdownV2(translation.Translate(msgID, vars...)))
}

func owner(r Request) string {
	return strconv.FormatInt(r.UserID, 10)
}

func (h *Handler) setAlert(ctx context.Context, r Request) Reply {
	identifier, target, err := commands.ParseAlertInput(r.Args)
	switch {
	case errors.Is(err, commands.ErrMissingCoin):
		return escaped("Oops! Please specify a cryptocurrency (e.g. /set_alert bitcoin 50000)")
	case errors.Is(err, commands.ErrMissingPrice):
		return escaped("Missing price! Please specify a target price (e.g. /set_alert bitcoin 50000)")
	}

	coin, err := h.deps.Coins.Resolve(identifier)
	if err != nil {
		return unknownCoin(identifier)
	}

	current, err := h.deps.Prices.GetPrice(ctx, coin.ID)
	if err != nil {
		log.Errorf("price of %s for new alert: %v", coin.ID, err)
		return escaped("Price fetch failed! Could not get the current price of %s. Try again later!", coin.Name)
	}

	a, err := h.deps.Book.Create(ctx, alert.NewAlert{
		Owner:        owner(r),
		OwnerName:    r.UserName,
		Coin:         coin,
		TargetPrice:  target,
		CurrentPrice: current,
		Channel:      r.ChatID,
	})
	switch {
	case errors.Is(err, alert.ErrInvalidPrice):
		return escaped("The target price must be a positive number.")
	case errors.Is(err, alert.ErrPriceUnavailable):
		log.Errorf("no usable price of %s for new alert: %v", coin.ID, err)
		return escaped("Price fetch failed! Could not get the current price of %s. Try again later!", coin.Name)
	case errors.Is(err, alert.ErrDuplicateAlert):
		return escaped("Already watching! You already have an active alert for %s at %s", coin.Name, helpers.FormatPrice(target))
	case err != nil:
		log.Errorf("could not create alert: %v", err)
		return escaped("Could not save the alert. Please try again later.")
	}

	if h.deps.Announcer != nil {
		if err := h.deps.Announcer.AlertCreated(ctx, a); err != nil {
			log.Errorf("could not announce alert %s: %v", a.UniqueID, err)
		}
	}
	return text(formatAlertCreated(a, current))
}

func unknownCoin(identifier string) Reply {
	return escaped("Coin not found! Couldn't find '%s'. Try /search %s", identifier, identifier)
}

func formatAlertCreated(a types.Alert, current decimal.Decimal) string {
	e := helpers.EscapeMarkdownV2
	diff := helpers.PercentChange(current, a.TargetPrice)
	direction, emoji := "below", "🛡️📉🎯"
	if a.TargetPrice.GreaterThan(current) {
		direction, emoji = "above", "🚀📈🎯"
	}

	var b strings.Builder
	b.WriteString(translation.Translate("*ALERT SET SUCCESSFULLY\\!* %s\n\n", emoji))
	b.WriteString(translation.Translate("Coin: *%s* \\(%s\\)\n", e(a.DisplayName), e(strings.ToUpper(a.DisplaySymbol))))
	b.WriteString(translation.Translate("Target: *%s*\n", e(helpers.FormatPrice(a.TargetPrice))))
	b.WriteString(translation.Translate("Current: %s\n", e(helpers.FormatPrice(current))))
	b.WriteString(translation.Translate("Difference: %s\n", e(helpers.FormatPercent(diff))))
	b.WriteString(translation.Translate("Will trigger when the price goes *%s* the target\n", direction))
	b.WriteString(translation.Translate("Status: ACTIVE & WATCHING\\!"))
	return b.String()
}

func (h *Handler) myAlerts(ctx context.Context, r Request) Reply {
	alerts, err := h.deps.Book.ListWatching(ctx, owner(r))
	if err != nil {
		log.Errorf("could not list alerts of %s: %v", owner(r), err)
		return escaped("Could not load your alerts. Please try again later.")
	}
	if len(alerts) == 0 {
		return escaped("You have no active alerts. Set one with /set_alert bitcoin 50000")
	}

	e := helpers.EscapeMarkdownV2
	now := h.now()
	var b strings.Builder
	b.WriteString(translation.Translate("🎯 *YOUR ACTIVE ALERTS* \\(%d\\)\n\n", len(alerts)))
	for i, a := range alerts {
		b.WriteString(translation.Translate("%d\\. *%s* \\(%s\\) at *%s* · set %s\n",
			i+1,
			e(a.DisplayName),
			e(strings.ToUpper(a.DisplaySymbol)),
			e(helpers.FormatPrice(a.TargetPrice)),
			e(helpers.FormatAgo(a.CreatedAt, now)),
		))
	}
	b.WriteString(e(translation.Translate("\nDelete one with /delete_alert <number>")))
	return text(b.String())
}

// detailedAlerts lists the watching alerts with the live price and the
// distance to each target. Each coin is priced once.
func (h *Handler) detailedAlerts(ctx context.Context, r Request) Reply {
	alerts, err := h.deps.Book.ListWatching(ctx, owner(r))
	if err != nil {
		log.Errorf("could not list alerts of %s: %v", owner(r), err)
		return escaped("Could not load your alerts. Please try again later.")
	}
	if len(alerts) == 0 {
		return escaped("You have no active alerts. Set one with /set_alert bitcoin 50000")
	}

	current := make(map[string]*decimal.Decimal)
	for _, a := range alerts {
		if _, ok := current[a.AssetID]; ok {
			continue
		}
		p, err := h.deps.Prices.GetPrice(ctx, a.AssetID)
		if err != nil {
			log.Warnf("price of %s for detailed alerts: %v", a.AssetID, err)
			current[a.AssetID] = nil
			continue
		}
		current[a.AssetID] = &p
	}

	e := helpers.EscapeMarkdownV2
	now := h.now()
	var b strings.Builder
	b.WriteString(translation.Translate("🎯 *DETAILED ALERTS* \\(%d\\)\n", len(alerts)))
	for i, a := range alerts {
		b.WriteString(translation.Translate("\n%d\\. *%s* \\(%s\\)\n", i+1, e(a.DisplayName), e(strings.ToUpper(a.DisplaySymbol))))
		b.WriteString(translation.Translate("Target: *%s*\n", e(helpers.FormatPrice(a.TargetPrice))))
		if p := current[a.AssetID]; p != nil {
			b.WriteString(translation.Translate("Current: %s\n", e(helpers.FormatPrice(*p))))
			b.WriteString(translation.Translate("Difference: %s\n", e(helpers.FormatPercent(helpers.PercentChange(*p, a.TargetPrice)))))
		} else {
			b.WriteString(translation.Translate("Current: unavailable\n"))
		}
		b.WriteString(translation.Translate("Set: %s\n", e(helpers.FormatAgo(a.CreatedAt, now))))
		b.WriteString(translation.Translate("ID: `%s`\n", a.AssetID))
	}
	b.WriteString(e(translation.Translate("\nDelete one with /delete_alert <number>")))
	return text(b.String())
}

func (h *Handler) deleteAlert(ctx context.Context, r Request) Reply {
	index, err := strconv.Atoi(r.Args)
	if err != nil {
		return escaped("Usage: /delete_alert <number>, see /my_alerts for the numbers")
	}

	a, err := h.deps.Book.DeleteByVisibleIndex(ctx, owner(r), index)
	switch {
	case errors.Is(err, alert.ErrNoAlerts):
		return escaped("You have no alerts to delete.")
	case errors.Is(err, alert.ErrIndexOutOfRange):
		return escaped("Invalid alert number! Check /my_alerts for the numbers.")
	case err != nil:
		log.Errorf("could not delete alert %d of %s: %v", index, owner(r), err)
		return escaped("Could not delete the alert. Please try again later.")
	}
	return escaped("Deleted the alert for %s at %s", a.DisplayName, helpers.FormatPrice(a.TargetPrice))
}

func (h *Handler) clearAlerts(ctx context.Context, r Request) Reply {
	n, err := h.deps.Book.ClearForOwner(ctx, owner(r))
	switch {
	case errors.Is(err, alert.ErrNoAlerts):
		return escaped("You have no alerts to clear.")
	case err != nil:
		log.Errorf("could not clear alerts of %s: %v", owner(r), err)
		return escaped("Could not clear your alerts. Please try again later.")
	}
	return escaped("Cleared %d alerts.", n)
}

// splitView takes a trailing view name off the arguments, so that
// "/price bitcoin hl" shows the high-low view of bitcoin. A single word is
// always the coin.
func splitView(args string) (string, commands.ViewKind) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return args, commands.ViewSummary
	}
	kind, err := commands.ParseViewKind(fields[len(fields)-1])
	if err != nil {
		return args, commands.ViewSummary
	}
	return strings.Join(fields[:len(fields)-1], " "), kind
}

func (h *Handler) price(ctx context.Context, r Request) Reply {
	if r.Args == "" {
		if h.deps.Board != nil {
			return h.board(ctx, commands.FormatBoard)
		}
		return escaped("Usage: /price <coin> [info|price|volume|hl|sr|support|resistance|chart]")
	}
	identifier, kind := splitView(r.Args)
	if kind == commands.ViewChart {
		return h.chart(ctx, identifier)
	}

	out, err := h.deps.Views.View(ctx, identifier, kind)
	if err != nil {
		return viewError(identifier, err)
	}
	return text(out)
}

func (h *Handler) board(ctx context.Context, format func([]price.MarketRow, time.Time) string) Reply {
	if h.deps.Board == nil {
		return escaped("The market board is not available.")
	}
	n := h.deps.TopN
	if n <= 0 {
		n = defaultTopN
	}
	rows, err := h.deps.Board.Top(ctx, n)
	if err != nil {
		log.Errorf("market board failed: %v", err)
		return escaped("Could not load market data right now. Please try again later.")
	}
	if len(rows) == 0 {
		return escaped("No markets to show right now.")
	}
	return text(format(rows, h.now()))
}

func (h *Handler) info(ctx context.Context, identifier string) Reply {
	if identifier == "" {
		return escaped("Usage: /coin_info <coin>")
	}
	out, err := h.deps.Views.View(ctx, identifier, commands.ViewInfo)
	if err != nil {
		return viewError(identifier, err)
	}
	return text(out)
}

func (h *Handler) chart(ctx context.Context, identifier string) Reply {
	if identifier == "" {
		return escaped("Usage: /chart <coin>")
	}
	data, caption, err := h.deps.Views.Chart(ctx, identifier)
	if err != nil {
		return viewError(identifier, err)
	}
	return Reply{Photo: data, Caption: caption}
}

func viewError(identifier string, err error) Reply {
	switch {
	case errors.Is(err, directory.ErrUnknownAsset):
		return unknownCoin(identifier)
	case errors.Is(err, commands.ErrNoRange):
		return escaped("No 24h range is available for %s yet.", identifier)
	case errors.Is(err, commands.ErrNoHistory):
		return escaped("Not enough price history to draw %s.", identifier)
	case errors.Is(err, commands.ErrNoMarketData):
		return escaped("%s is not actively traded and has no current price.", identifier)
	}
	log.Errorf("view of %s failed: %v", identifier, err)
	return escaped("Could not load market data right now. Please try again later.")
}

func (h *Handler) search(r Request) Reply {
	if r.Args == "" {
		return escaped("Usage: /search <name or symbol>")
	}
	coins := h.deps.Coins.Search(r.Args, searchLimit)
	if len(coins) == 0 {
		return escaped("No coins found for '%s'.", r.Args)
	}

	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("🔍 *Results for '%s'*\n\n", e(r.Args)))
	for _, c := range coins {
		b.WriteString(translation.Translate("• *%s* \\(%s\\) `%s`\n", e(c.Name), e(strings.ToUpper(c.Symbol)), c.ID))
	}
	return text(b.String())
}

func (h *Handler) news(ctx context.Context, r Request) Reply {
	count := defaultNewsCount
	if r.Args != "" {
		n, err := strconv.Atoi(r.Args)
		if err != nil {
			return escaped("Usage: /news [1-%d]", maxNewsCount)
		}
		count = lo.Clamp(n, 1, maxNewsCount)
	}

	items, err := h.deps.News.Latest(ctx)
	if err != nil {
		log.Errorf("could not fetch news: %v", err)
		return escaped("Could not fetch news right now. Please try again later.")
	}
	if len(items) == 0 {
		return escaped("No news right now.")
	}
	if len(items) > count {
		items = items[:count]
	}

	e := helpers.EscapeMarkdownV2
	var b strings.Builder
	b.WriteString(translation.Translate("📰 *LATEST CRYPTO NEWS*\n\n"))
	for i, item := range items {
		link := strings.NewReplacer("\\", "\\\\", ")", "\\)").Replace(item.Link)
		b.WriteString(translation.Translate("%d\\. [%s](%s) _%s_\n", i+1, e(item.Title), link, e(item.Source)))
	}
	return Reply{Text: b.String()}
}

func (h *Handler) stats(ctx context.Context) Reply {
	c, err := h.deps.Book.Snapshot(ctx)
	if err != nil {
		log.Errorf("could not load alerts for stats: %v", err)
		return escaped("Could not load stats right now.")
	}
	total, watching := c.Count()
	now := h.now()

	var newsSeen int
	if h.deps.NewsCache != nil {
		newsSeen = h.deps.NewsCache.Len()
	}

	lines := []string{
		translation.Translate("Users with alerts: %d", len(c)),
		translation.Translate("Alerts: %d watching, %d triggered", watching, total-watching),
		translation.Translate("Coins in directory: %d", h.deps.Coins.Len()),
		translation.Translate("Coin list updated: %s", helpers.FormatAgo(h.deps.Coins.UpdatedAt(), now)),
		translation.Translate("News items remembered: %d", newsSeen),
		translation.Translate("Up since: %s", helpers.FormatAgo(h.started, now)),
		translation.Translate("Language: %s", translation.GetLanguage()),
	}
	return text(translation.Translate("📊 *BOT STATS*\n\n") + helpers.EscapeMarkdownV2(strings.Join(lines, "\n")))
}

func (h *Handler) isAdmin(userID int64) bool {
	return lo.Contains(h.deps.Admins, userID)
}

func (h *Handler) refreshCoins(ctx context.Context, r Request) Reply {
	if !h.isAdmin(r.UserID) {
		return escaped("Only admins can refresh the coin list.")
	}
	n, err := h.deps.Coins.Refresh(ctx, true)
	if err != nil {
		log.Errorf("forced coin refresh failed: %v", err)
		return escaped("Refresh failed, still using %d cached coins.", h.deps.Coins.Len())
	}
	return escaped("Coin list refreshed: %d coins.", n)
}

func helpText() string {
	return helpers.EscapeMarkdownV2(translation.Translate(`Crypto alert bot

Alerts
/set_alert <coin> <price> - alert when the price crosses the target
/my_alerts - your active alerts
/alerts_detailed - your alerts with live prices
/delete_alert <number> - delete one alert
/clear_alerts - delete all your alerts

Market
/prices - top markets by volume
/volume - top 24h volumes
/price <coin> [info|price|volume|hl|sr|support|resistance|chart]
/coin_info <coin> - market cap and 1h, 24h, 7d moves
/chart <coin> - 7 day chart
/search <query> - find a coin
/news [count] - latest headlines
/stats - bot statistics`))
}
