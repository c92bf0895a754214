package deepdive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tiered := Tier([]MergedEntityRecord{
		{EntityKey: "a", RevP1: 100, RevP2: 600, ReqP1: 1000, ReqP2: 2000},
		{EntityKey: "b", RevP1: 0, RevP2: 250, ReqP1: 0, ReqP2: 500},
		{EntityKey: "c", RevP1: 100, RevP2: 150, ReqP1: 800, ReqP2: 900},
		{EntityKey: "d", RevP1: 50, RevP2: 0, ReqP1: 400, ReqP2: 0},
	})
	s := Summarize(tiered)

	assert.Equal(t, 4, s.TotalItems)
	assert.Equal(t, 250.0, s.TotalRevenueP1)
	assert.Equal(t, 1000.0, s.TotalRevenueP2)
	assert.Equal(t, int64(2200), s.TotalRequestsP1)
	assert.Equal(t, int64(3400), s.TotalRequestsP2)
	assert.InDelta(t, 300.0, s.RevenueChangePct, 1e-9)
	assert.InDelta(t, 54.545, s.RequestChangePct, 0.001)

	// Every display bucket is present even when empty.
	for _, key := range []string{TierA, TierB, TierC, DisplayNew, DisplayLost} {
		_, ok := s.TierCounts[key]
		assert.True(t, ok, "missing tier count key %s", key)
	}
	assert.Equal(t, 1, s.TierCounts[DisplayNew])
	assert.Equal(t, 1, s.TierCounts[DisplayLost])

	total := 0
	for _, n := range s.TierCounts {
		total += n
	}
	assert.Equal(t, s.TotalItems, total)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalItems)
	assert.Zero(t, s.RevenueChangePct)
	assert.False(t, math.IsNaN(s.RevenueChangePct))
	assert.Len(t, s.TierCounts, 5)
}

func TestSummarizeZeroRevenue(t *testing.T) {
	s := Summarize(Tier([]MergedEntityRecord{
		{EntityKey: "a"},
		{EntityKey: "b"},
	}))
	assert.Zero(t, s.RevenueChangePct)
	assert.Zero(t, s.RequestChangePct)
	assert.False(t, math.IsInf(s.RevenueChangePct, 0))
	assert.Equal(t, 2, s.TierCounts[TierC])
}
