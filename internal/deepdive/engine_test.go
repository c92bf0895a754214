package deepdive

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierNewLostExistingScenario(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "1", RevP1: 0, RevP2: 100},
		{EntityKey: "2", RevP1: 50, RevP2: 0},
		{EntityKey: "3", RevP1: 40, RevP2: 45},
	}
	for i := range records {
		records[i].RevChangePct = changePct(records[i].RevP1, records[i].RevP2)
	}

	tiered := Tier(records)
	require.Len(t, tiered, 3)

	// Sorted by rev_p2 descending.
	assert.Equal(t, "1", tiered[0].EntityKey)
	assert.Equal(t, "3", tiered[1].EntityKey)
	assert.Equal(t, "2", tiered[2].EntityKey)

	assert.InDelta(t, 68.97, tiered[0].CumulativeRevenuePct, 0.01)
	assert.InDelta(t, 100.0, tiered[1].CumulativeRevenuePct, 1e-9)
	assert.InDelta(t, 100.0, tiered[2].CumulativeRevenuePct, 1e-9)

	// The top earner opens at 0% share and the runner-up at 68.97%, so
	// both sit in tier A; the zero-revenue record opens at 100%, tier C.
	assert.Equal(t, TierA, tiered[0].RevenueTier)
	assert.Equal(t, TierA, tiered[1].RevenueTier)
	assert.Equal(t, TierC, tiered[2].RevenueTier)

	assert.Equal(t, StatusNew, tiered[0].Status)
	assert.Equal(t, StatusExisting, tiered[1].Status)
	assert.Equal(t, StatusLost, tiered[2].Status)

	assert.Equal(t, DisplayNew, tiered[0].DisplayTier)
	assert.Equal(t, "NEW-A", tiered[0].TierGroup)
	assert.Equal(t, TierA, tiered[1].DisplayTier)
	assert.Equal(t, TierA, tiered[1].TierGroup)
	assert.Equal(t, DisplayLost, tiered[2].DisplayTier)
	assert.Equal(t, "LOST-C", tiered[2].TierGroup)
}

func TestTierZeroRevenue(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "a"},
		{EntityKey: "b"},
	}
	tiered := Tier(records)
	for _, rec := range tiered {
		assert.Equal(t, TierC, rec.RevenueTier)
		assert.Zero(t, rec.CumulativeRevenuePct)
		assert.False(t, math.IsNaN(rec.CumulativeRevenuePct))
	}
}

func TestTierEmptyInput(t *testing.T) {
	tiered := Tier(nil)
	assert.Empty(t, tiered)
}

func TestTierSorting(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "z", RevP2: 10},
		{EntityKey: "a", RevP2: 10}, // tie broken by key
		{EntityKey: "m", RevP2: 99},
	}
	tiered := Tier(records)
	keys := make([]string, len(tiered))
	for i, r := range tiered {
		keys[i] = r.EntityKey
	}
	assert.Equal(t, []string{"m", "a", "z"}, keys)
}

func TestTierCumulativeMonotonic(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "a", RevP2: 500},
		{EntityKey: "b", RevP2: 300},
		{EntityKey: "c", RevP2: 150},
		{EntityKey: "d", RevP2: 40},
		{EntityKey: "e", RevP2: 10},
		{EntityKey: "f", RevP2: 0},
	}
	tiered := Tier(records)
	prev := -1.0
	for _, rec := range tiered {
		assert.GreaterOrEqual(t, rec.CumulativeRevenuePct, prev, "key %s", rec.EntityKey)
		prev = rec.CumulativeRevenuePct
	}
	assert.InDelta(t, 100.0, tiered[len(tiered)-1].CumulativeRevenuePct, 1e-9)
}

func TestTierPartitionInvariant(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "a", RevP1: 10, RevP2: 600},
		{EntityKey: "b", RevP1: 0, RevP2: 250},
		{EntityKey: "c", RevP1: 20, RevP2: 100},
		{EntityKey: "d", RevP1: 30, RevP2: 40},
		{EntityKey: "e", RevP1: 5, RevP2: 10},
		{EntityKey: "f", RevP1: 9, RevP2: 0},
	}
	tiered := Tier(records)

	seen := map[string]int{}
	counts := map[string]int{}
	for _, rec := range tiered {
		seen[rec.EntityKey]++
		counts[rec.DisplayTier]++
	}
	assert.Len(t, seen, len(records))
	for key, n := range seen {
		assert.Equal(t, 1, n, "key %s seen %d times", key, n)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, len(records), total)
}

func TestTierStatusExclusivity(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "a", RevP1: 10, RevP2: 20},
		{EntityKey: "b", RevP1: 0, RevP2: 5},
		{EntityKey: "c", RevP1: 5, RevP2: 0},
		{EntityKey: "d", RevP1: 0, RevP2: 0},
	}
	for _, rec := range Tier(records) {
		if rec.Status == StatusNew {
			assert.Zero(t, rec.RevP1, "new entity %s has period-1 revenue", rec.EntityKey)
		}
		if rec.Status == StatusLost {
			assert.Zero(t, rec.RevP2, "lost entity %s has period-2 revenue", rec.EntityKey)
		}
	}
}

func TestTierDeterminism(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "b", RevP1: 10, RevP2: 50},
		{EntityKey: "a", RevP1: 10, RevP2: 50},
		{EntityKey: "c", RevP1: 0, RevP2: 50},
		{EntityKey: "d", RevP1: 5, RevP2: 0},
	}

	first, err := json.Marshal(Tier(records))
	require.NoError(t, err)
	second, err := json.Marshal(Tier(records))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestTransitionWarnings(t *testing.T) {
	// Total rev_p2 is 1000, so revenues are shares in tenths of a
	// percent. Cumulative closes: a 60, b 80.4, c 84.4, d 88, e 91.4,
	// f 94.6, g 97.6, h 100.
	records := []MergedEntityRecord{
		{EntityKey: "a", RevP1: 50, RevP2: 600},
		{EntityKey: "b", RevP1: 50, RevP2: 204},
		{EntityKey: "c", RevP1: 50, RevP2: 40},
		{EntityKey: "d", RevP1: 50, RevP2: 36},
		{EntityKey: "e", RevP1: 50, RevP2: 34},
		{EntityKey: "f", RevP1: 50, RevP2: 32},
		{EntityKey: "g", RevP1: 50, RevP2: 30},
		{EntityKey: "h", RevP1: 50, RevP2: 24},
	}
	for i := range records {
		records[i].RevChangePct = changePct(records[i].RevP1, records[i].RevP2)
	}
	tiered := Tier(records)

	byKey := map[string]TieredRecord{}
	for _, rec := range tiered {
		byKey[rec.EntityKey] = rec
	}

	assert.Nil(t, byKey["a"].TransitionWarning, "dominant tier A entity should carry no warning")

	// b closes at 80.4%, inside the band around the A/B boundary.
	require.Equal(t, TierA, byKey["b"].RevenueTier)
	require.NotNil(t, byKey["b"].TransitionWarning)
	assert.Contains(t, *byKey["b"].TransitionWarning, "80% threshold")

	// c is tier B closing at 84.4%, within reach of tier A.
	require.Equal(t, TierB, byKey["c"].RevenueTier)
	require.NotNil(t, byKey["c"].TransitionWarning)
	assert.Contains(t, *byKey["c"].TransitionWarning, "approaching tier A")

	// d and e are mid tier B, outside every advisory band.
	assert.Nil(t, byKey["d"].TransitionWarning)
	assert.Nil(t, byKey["e"].TransitionWarning)

	// f closes at 94.6%, inside the band around the B/C boundary.
	require.Equal(t, TierB, byKey["f"].RevenueTier)
	require.NotNil(t, byKey["f"].TransitionWarning)
	assert.Contains(t, *byKey["f"].TransitionWarning, "95% threshold")

	// g opens at 94.6% so it is still tier B, past both bands.
	require.Equal(t, TierB, byKey["g"].RevenueTier)
	assert.Nil(t, byKey["g"].TransitionWarning)

	// h opens at 97.6%: tier C with revenue down, a removal candidate.
	require.Equal(t, TierC, byKey["h"].RevenueTier)
	require.NotNil(t, byKey["h"].TransitionWarning)
	assert.Contains(t, *byKey["h"].TransitionWarning, "removal candidate")
}

func TestTransitionWarningRemovalCandidate(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "big", RevP1: 900, RevP2: 990},
		{EntityKey: "tail", RevP1: 100, RevP2: 10},
	}
	for i := range records {
		records[i].RevChangePct = changePct(records[i].RevP1, records[i].RevP2)
	}
	tiered := Tier(records)

	var tail TieredRecord
	for _, rec := range tiered {
		if rec.EntityKey == "tail" {
			tail = rec
		}
	}
	require.Equal(t, TierC, tail.RevenueTier)
	require.NotNil(t, tail.TransitionWarning)
	assert.Contains(t, *tail.TransitionWarning, "removal candidate")
}

func TestTransitionWarningSkipsNewAndLost(t *testing.T) {
	records := []MergedEntityRecord{
		{EntityKey: "new", RevP1: 0, RevP2: 80},
		{EntityKey: "lost", RevP1: 100, RevP2: 0},
	}
	for _, rec := range Tier(records) {
		assert.Nil(t, rec.TransitionWarning, "key %s", rec.EntityKey)
	}
}

func TestClassifySeverity(t *testing.T) {
	mk := func(revP1, revP2 float64, reqP1, reqP2, paidP1, paidP2 int64) *TieredRecord {
		rec := &TieredRecord{MergedEntityRecord: MergedEntityRecord{
			RevP1: revP1, RevP2: revP2,
			ReqP1: reqP1, ReqP2: reqP2,
			PaidP1: paidP1, PaidP2: paidP2,
		}}
		rec.ReqChangePct = changePct(float64(reqP1), float64(reqP2))
		rec.FillRateP1 = fillRate(paidP1, reqP1)
		rec.FillRateP2 = fillRate(paidP2, reqP2)
		return rec
	}

	tests := []struct {
		name string
		rec  *TieredRecord
		want Severity
	}{
		{"steady entity", mk(100, 102, 1000, 1020, 900, 920), SeverityHealthy},
		{"moderate request drift", mk(100, 100, 1000, 1200, 900, 1080), SeverityInfo},
		{"large request swing", mk(100, 100, 1000, 1400, 900, 1260), SeverityWarning},
		{"fill rate collapse", mk(100, 95, 1000, 1000, 900, 500), SeverityWarning},
		{"volume and ecpm collapse", mk(100, 20, 1000, 400, 900, 360), SeverityCritical},
		{"zero both periods", mk(0, 0, 0, 0, 0, 0), SeverityHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySeverity(tt.rec))
		})
	}
}

func TestSeverityNeverNaN(t *testing.T) {
	rec := &TieredRecord{MergedEntityRecord: MergedEntityRecord{
		EntityKey: "z", RevP1: 0, RevP2: 0, ReqP1: 0, ReqP2: 0,
	}}
	assert.NotPanics(t, func() { classifySeverity(rec) })
	assert.Zero(t, ecpm(0, 0))
	assert.Zero(t, changePct(0, 50)) // degraded, not Inf
	assert.Zero(t, fillRate(5, 0))
}
