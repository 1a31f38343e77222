package alert

import (
	"crypto-alert-bot/internal/types"

	"github.com/shopspring/decimal"
)

// Crossing is the outcome of comparing two consecutive observations against a
// target price.
type Crossing int

const (
	None Crossing = iota
	CrossedUp
	CrossedDown
)

func (c Crossing) String() string {
	switch c {
	case CrossedUp:
		return "crossed_up"
	case CrossedDown:
		return "crossed_down"
	default:
		return "none"
	}
}

// Direction maps a crossing onto the direction recorded on the alert.
func (c Crossing) Direction() types.Direction {
	switch c {
	case CrossedUp:
		return types.DirectionAbove
	case CrossedDown:
		return types.DirectionBelow
	default:
		return types.DirectionNone
	}
}

// Detect reports a crossing when the previous observation was strictly on one
// side of target and the current one is on the other side or exactly on it.
// Landing on the target counts, starting on it does not, so a price that sits
// at the target never fires.
func Detect(previous, current, target decimal.Decimal) Crossing {
	switch {
	case previous.LessThan(target) && target.LessThanOrEqual(current):
		return CrossedUp
	case previous.GreaterThan(target) && target.GreaterThanOrEqual(current):
		return CrossedDown
	default:
		return None
	}
}
