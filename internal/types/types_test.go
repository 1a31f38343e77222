package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCollectionClone(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Collection{
		"42": {
			{UniqueID: "a", State: StateWatching, TargetPrice: decimal.NewFromInt(120)},
			{UniqueID: "b", State: StateTriggered, TriggeredAt: &at},
		},
	}

	cp := c.Clone()
	cp["42"][0].State = StateTriggered
	*cp["42"][1].TriggeredAt = at.Add(time.Hour)
	delete(cp, "42")

	require.Len(t, c["42"], 2)
	require.Equal(t, StateWatching, c["42"][0].State)
	require.True(t, c["42"][1].TriggeredAt.Equal(at))
}

func TestCollectionCount(t *testing.T) {
	c := Collection{
		"1": {{State: StateWatching}, {State: StateTriggered}},
		"2": {{State: StateWatching}},
	}
	total, watching := c.Count()
	require.Equal(t, 3, total)
	require.Equal(t, 2, watching)
}
