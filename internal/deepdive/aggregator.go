package deepdive

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// MetricSource runs grouped-aggregation queries against the ad-revenue
// warehouse. Implemented by the warehouse client; faked in tests.
type MetricSource interface {
	FetchEntityMetrics(ctx context.Context, q MetricQuery) ([]EntityMetricRow, error)
}

// Aggregator fetches both periods' metrics and merges them into one record
// per entity. Read-only and side-effect free: safe to retry from outside.
type Aggregator struct {
	source MetricSource
	table  string
}

// NewAggregator creates an aggregator over the given source and table.
func NewAggregator(source MetricSource, table string) *Aggregator {
	return &Aggregator{source: source, table: table}
}

// Aggregate runs the two period queries concurrently (both must resolve
// before merging; a barrier, not a pipeline) and full-outer-joins the
// results by entity key. A failure in either period fails the whole call;
// no partial merge is ever returned.
func (a *Aggregator) Aggregate(ctx context.Context, spec PerspectiveSpec, period1, period2 DateRange, predicate string) ([]MergedEntityRecord, error) {
	var rows1, rows2 []EntityMetricRow

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows1, err = a.source.FetchEntityMetrics(gctx, MetricQuery{
			Table:       a.table,
			KeyColumn:   spec.KeyColumn,
			LabelColumn: spec.LabelColumn,
			Predicate:   predicate,
			Range:       period1,
		})
		if err != nil {
			return &DataSourceError{Op: "period1 query", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rows2, err = a.source.FetchEntityMetrics(gctx, MetricQuery{
			Table:       a.table,
			KeyColumn:   spec.KeyColumn,
			LabelColumn: spec.LabelColumn,
			Predicate:   predicate,
			Range:       period2,
		})
		if err != nil {
			return &DataSourceError{Op: "period2 query", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergePeriods(rows1, rows2), nil
}

// mergePeriods full-outer-joins two period row sets on entity key.
// Entities present in only one period get zero-filled metrics for the
// other; labels prefer period 2.
func mergePeriods(rows1, rows2 []EntityMetricRow) []MergedEntityRecord {
	merged := make(map[string]*MergedEntityRecord, len(rows1)+len(rows2))

	for _, r := range rows1 {
		merged[r.Key] = &MergedEntityRecord{
			EntityKey: r.Key,
			Label:     r.Label,
			RevP1:     r.Revenue,
			ReqP1:     r.Requests,
			PaidP1:    r.PaidRequests,
		}
	}
	for _, r := range rows2 {
		rec, ok := merged[r.Key]
		if !ok {
			rec = &MergedEntityRecord{EntityKey: r.Key}
			merged[r.Key] = rec
		}
		rec.RevP2 = r.Revenue
		rec.ReqP2 = r.Requests
		rec.PaidP2 = r.PaidRequests
		if r.Label != "" {
			rec.Label = r.Label
		}
	}

	out := make([]MergedEntityRecord, 0, len(merged))
	for _, rec := range merged {
		rec.RevChangePct = changePct(rec.RevP1, rec.RevP2)
		rec.ReqChangePct = changePct(float64(rec.ReqP1), float64(rec.ReqP2))
		rec.FillRateP1 = fillRate(rec.PaidP1, rec.ReqP1)
		rec.FillRateP2 = fillRate(rec.PaidP2, rec.ReqP2)
		out = append(out, *rec)
	}
	// Map iteration order is random; give callers a stable starting order.
	sort.Slice(out, func(i, j int) bool { return out[i].EntityKey < out[j].EntityKey })
	return out
}

// changePct computes (p2-p1)/p1*100, degrading to 0 when p1 is 0.
func changePct(p1, p2 float64) float64 {
	if p1 == 0 {
		return 0
	}
	return (p2 - p1) / p1 * 100
}

// fillRate computes paid/requests, clamped to [0,1]. Source rows where
// paid exceeds requests are inconsistent but tolerated.
func fillRate(paid, requests int64) float64 {
	if requests <= 0 {
		return 0
	}
	rate := float64(paid) / float64(requests)
	if rate > 1 {
		return 1
	}
	if rate < 0 {
		return 0
	}
	return rate
}
