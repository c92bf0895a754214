package deepdive

// Summarize reduces a tiered result set to portfolio totals. All five
// display-tier buckets are always present in TierCounts so the UI can
// render a stable legend.
func Summarize(records []TieredRecord) Summary {
	s := Summary{
		TotalItems: len(records),
		TierCounts: map[string]int{
			TierA:       0,
			TierB:       0,
			TierC:       0,
			DisplayNew:  0,
			DisplayLost: 0,
		},
	}

	for i := range records {
		r := &records[i]
		s.TotalRevenueP1 += r.RevP1
		s.TotalRevenueP2 += r.RevP2
		s.TotalRequestsP1 += r.ReqP1
		s.TotalRequestsP2 += r.ReqP2
		s.TierCounts[r.DisplayTier]++
	}

	s.RevenueChangePct = changePct(s.TotalRevenueP1, s.TotalRevenueP2)
	s.RequestChangePct = changePct(float64(s.TotalRequestsP1), float64(s.TotalRequestsP2))
	return s
}
