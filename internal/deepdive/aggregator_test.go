package deepdive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource answers period queries from canned rows keyed by range start.
type fakeSource struct {
	rows    map[string][]EntityMetricRow
	errs    map[string]error
	queries []MetricQuery
}

func (f *fakeSource) FetchEntityMetrics(_ context.Context, q MetricQuery) ([]EntityMetricRow, error) {
	f.queries = append(f.queries, q)
	if err := f.errs[q.Range.Start]; err != nil {
		return nil, err
	}
	return f.rows[q.Range.Start], nil
}

var (
	testPeriod1 = DateRange{Start: "2026-07-01", End: "2026-07-31"}
	testPeriod2 = DateRange{Start: "2026-08-01", End: "2026-08-31"}
)

func TestAggregateMergesPeriods(t *testing.T) {
	source := &fakeSource{rows: map[string][]EntityMetricRow{
		testPeriod1.Start: {
			{Key: "100", Label: "Acme", Revenue: 50, Requests: 1000, PaidRequests: 800},
			{Key: "200", Label: "Globex", Revenue: 30, Requests: 500, PaidRequests: 400},
		},
		testPeriod2.Start: {
			{Key: "100", Label: "Acme Media", Revenue: 60, Requests: 1200, PaidRequests: 1000},
			{Key: "300", Label: "Initech", Revenue: 10, Requests: 100, PaidRequests: 90},
		},
	}}
	agg := NewAggregator(source, testTable)

	spec, err := ParsePerspective("pid")
	require.NoError(t, err)
	merged, err := agg.Aggregate(context.Background(), spec, testPeriod1, testPeriod2, "TRUE")
	require.NoError(t, err)
	require.Len(t, merged, 3)

	byKey := map[string]MergedEntityRecord{}
	for _, rec := range merged {
		byKey[rec.EntityKey] = rec
	}

	// Present in both periods: label prefers period 2.
	acme := byKey["100"]
	assert.Equal(t, "Acme Media", acme.Label)
	assert.Equal(t, 50.0, acme.RevP1)
	assert.Equal(t, 60.0, acme.RevP2)
	assert.InDelta(t, 20.0, acme.RevChangePct, 1e-9)
	assert.InDelta(t, 0.8, acme.FillRateP1, 1e-9)

	// Period-1 only: zero-filled period 2.
	globex := byKey["200"]
	assert.Equal(t, "Globex", globex.Label)
	assert.Zero(t, globex.RevP2)
	assert.Zero(t, globex.ReqP2)
	assert.Zero(t, globex.FillRateP2)
	assert.InDelta(t, -100.0, globex.RevChangePct, 1e-9)

	// Period-2 only: zero-filled period 1, change pct degrades to 0.
	initech := byKey["300"]
	assert.Zero(t, initech.RevP1)
	assert.Equal(t, 10.0, initech.RevP2)
	assert.Zero(t, initech.RevChangePct)
}

func TestAggregateQueryShape(t *testing.T) {
	source := &fakeSource{}
	agg := NewAggregator(source, testTable)
	spec, err := ParsePerspective("zone")
	require.NoError(t, err)

	_, err = agg.Aggregate(context.Background(), spec, testPeriod1, testPeriod2, "COUNTRY = 'JP'")
	require.NoError(t, err)
	require.Len(t, source.queries, 2)

	starts := map[string]bool{}
	for _, q := range source.queries {
		assert.Equal(t, testTable, q.Table)
		assert.Equal(t, "ZONE_ID", q.KeyColumn)
		assert.Equal(t, "ZONE_NAME", q.LabelColumn)
		assert.Equal(t, "COUNTRY = 'JP'", q.Predicate)
		starts[q.Range.Start] = true
	}
	assert.True(t, starts[testPeriod1.Start])
	assert.True(t, starts[testPeriod2.Start])
}

func TestAggregateFailsAtomically(t *testing.T) {
	source := &fakeSource{
		rows: map[string][]EntityMetricRow{
			testPeriod1.Start: {{Key: "100", Revenue: 50}},
		},
		errs: map[string]error{
			testPeriod2.Start: errors.New("warehouse timeout"),
		},
	}
	agg := NewAggregator(source, testTable)
	spec, err := ParsePerspective("pid")
	require.NoError(t, err)

	merged, err := agg.Aggregate(context.Background(), spec, testPeriod1, testPeriod2, "TRUE")
	assert.Nil(t, merged, "no partial merge on failure")
	require.Error(t, err)

	var dsErr *DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "period2 query", dsErr.Op)
}

func TestAggregateStableOrder(t *testing.T) {
	source := &fakeSource{rows: map[string][]EntityMetricRow{
		testPeriod1.Start: {{Key: "c"}, {Key: "a"}},
		testPeriod2.Start: {{Key: "b"}},
	}}
	agg := NewAggregator(source, testTable)
	spec, err := ParsePerspective("product")
	require.NoError(t, err)

	merged, err := agg.Aggregate(context.Background(), spec, testPeriod1, testPeriod2, "TRUE")
	require.NoError(t, err)
	keys := make([]string, len(merged))
	for i, rec := range merged {
		keys[i] = rec.EntityKey
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestFillRateClamped(t *testing.T) {
	// Paid above requests is inconsistent source data; clamp, don't reject.
	assert.Equal(t, 1.0, fillRate(1200, 1000))
	assert.Equal(t, 0.0, fillRate(0, 0))
	assert.InDelta(t, 0.5, fillRate(500, 1000), 1e-9)
}
