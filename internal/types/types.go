package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of an alert. WATCHING moves to TRIGGERED
// exactly once and never back.
type State string

const (
	StateWatching  State = "watching"
	StateTriggered State = "triggered"
)

// Direction records which way the price crossed the target.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

type Alert struct {
	UniqueID          string          `json:"unique_id"`
	Owner             string          `json:"owner"`
	OwnerName         string          `json:"owner_name"`
	AssetID           string          `json:"asset_id"`
	DisplaySymbol     string          `json:"display_symbol"`
	DisplayName       string          `json:"display_name"`
	TargetPrice       decimal.Decimal `json:"target_price"`
	LastObservedPrice decimal.Decimal `json:"last_observed_price"`
	State             State           `json:"state"`
	TriggerDirection  Direction       `json:"trigger_direction,omitempty"`
	TriggeredPrice    decimal.Decimal `json:"triggered_price"`
	CreatedAt         time.Time       `json:"created_at"`
	TriggeredAt       *time.Time      `json:"triggered_at,omitempty"`
	DeliveryChannel   int64           `json:"delivery_channel"`
}

func (a *Alert) IsWatching() bool {
	return a.State == StateWatching
}

// Collection maps an owner to their alerts in creation order. Owners without
// any alert history are absent rather than mapped to an empty slice.
type Collection map[string][]Alert

// Clone returns a deep copy so that callers can mutate a snapshot without
// affecting the source.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for owner, alerts := range c {
		cp := make([]Alert, len(alerts))
		copy(cp, alerts)
		for i := range cp {
			if cp[i].TriggeredAt != nil {
				t := *cp[i].TriggeredAt
				cp[i].TriggeredAt = &t
			}
		}
		out[owner] = cp
	}
	return out
}

// Count returns the total number of alerts and how many of them are watching.
func (c Collection) Count() (total, watching int) {
	for _, alerts := range c {
		for i := range alerts {
			total++
			if alerts[i].IsWatching() {
				watching++
			}
		}
	}
	return total, watching
}

// Coin is a canonical asset record in the coin directory.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Rank   int64  `json:"rank"`
}

// NewsItem is a feed entry. Only Link is used for deduplication.
type NewsItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
}
