package deepdive

import (
	"fmt"
	"math"
	"sort"
)

// Pareto tier boundaries over cumulative period-2 revenue share.
const (
	tierABoundary = 80.0
	tierBBoundary = 95.0

	// Band around a boundary that triggers an "at threshold" advisory.
	boundaryBand = 0.5
)

// Anomaly severity cutoffs. Chosen fixed values; what matters is the
// strict healthy < info < warning < critical ordering.
const (
	criticalReqSwing  = 50.0
	criticalEcpmSwing = 30.0
	warningReqSwing   = 30.0
	warningEcpmSwing  = 30.0
	warningFillDrop   = 0.20
	infoReqSwing      = 10.0
	infoEcpmSwing     = 10.0
)

// Tier enriches merged records with cumulative revenue share, Pareto
// tiers, status classification, transition warnings and anomaly
// severities. The input slice is not modified; the returned slice is
// sorted by rev_p2 descending, ties broken by entity key ascending.
func Tier(records []MergedEntityRecord) []TieredRecord {
	out := make([]TieredRecord, len(records))
	for i, r := range records {
		out[i] = TieredRecord{MergedEntityRecord: r}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RevP2 != out[j].RevP2 {
			return out[i].RevP2 > out[j].RevP2
		}
		return out[i].EntityKey < out[j].EntityKey
	})

	var totalRevP2 float64
	for i := range out {
		totalRevP2 += out[i].RevP2
	}

	var cumulative float64
	for i := range out {
		rec := &out[i]
		// The tier is decided by the share at which the record STARTS,
		// not the share after its own revenue is added. The top earner
		// is always tier A no matter how dominant it is, and a record
		// straddling a boundary belongs to the tier it opened in (the
		// boundary-straddle advisory below flags those).
		var startPct float64
		if totalRevP2 > 0 {
			startPct = cumulative / totalRevP2 * 100
		}
		cumulative += rec.RevP2
		rec.CumulativeRevenue = cumulative
		if totalRevP2 > 0 {
			rec.CumulativeRevenuePct = cumulative / totalRevP2 * 100
		}

		switch {
		case totalRevP2 == 0:
			// No revenue at all: every record sits in the long tail.
			rec.RevenueTier = TierC
		case startPct <= tierABoundary:
			rec.RevenueTier = TierA
		case startPct <= tierBBoundary:
			rec.RevenueTier = TierB
		default:
			rec.RevenueTier = TierC
		}

		rec.Status = classifyStatus(rec.RevP1, rec.RevP2)

		switch rec.Status {
		case StatusNew:
			rec.DisplayTier = DisplayNew
			rec.TierGroup = DisplayNew + "-" + rec.RevenueTier
		case StatusLost:
			rec.DisplayTier = DisplayLost
			rec.TierGroup = DisplayLost + "-" + rec.RevenueTier
		default:
			rec.DisplayTier = rec.RevenueTier
			rec.TierGroup = rec.RevenueTier
		}

		rec.TransitionWarning = transitionWarning(rec)
		rec.WarningSeverity = classifySeverity(rec)
	}

	return out
}

func classifyStatus(revP1, revP2 float64) Status {
	switch {
	case revP1 == 0 && revP2 > 0:
		return StatusNew
	case revP1 > 0 && revP2 == 0:
		return StatusLost
	default:
		return StatusExisting
	}
}

// transitionWarning builds the advisory for entities sitting near tier
// boundaries or drifting out of the portfolio. Only existing entities
// get one; new/lost entities already carry their status in display_tier.
func transitionWarning(rec *TieredRecord) *string {
	if rec.Status != StatusExisting {
		return nil
	}
	pct := rec.CumulativeRevenuePct

	switch rec.RevenueTier {
	case TierA:
		if math.Abs(pct-tierABoundary) <= boundaryBand {
			return strPtr(fmt.Sprintf("at 80%% threshold (cumulative share %.2f%%)", pct))
		}
		if pct > tierABoundary {
			return strPtr(fmt.Sprintf("tier A above 80%% boundary (%.2f%%), review tier assignment", pct))
		}
		if pct > 75 {
			return strPtr(fmt.Sprintf("approaching tier B (cumulative share %.2f%%)", pct))
		}
	case TierB:
		if pct <= 85 {
			return strPtr(fmt.Sprintf("approaching tier A (%.2f%% above the 80%% boundary)", pct-tierABoundary))
		}
		if math.Abs(pct-tierBBoundary) <= boundaryBand {
			return strPtr(fmt.Sprintf("at 95%% threshold (cumulative share %.2f%%)", pct))
		}
	case TierC:
		if rec.RevChangePct < 0 {
			return strPtr(fmt.Sprintf("removal candidate (revenue down %.2f%%)", -rec.RevChangePct))
		}
	}
	return nil
}

// classifySeverity grades the magnitude of the entity's swing between
// periods. Independent of tier: a tier-A entity and a tier-C entity with
// the same swing get the same severity.
func classifySeverity(rec *TieredRecord) Severity {
	reqSwing := math.Abs(rec.ReqChangePct)
	ecpmP1 := ecpm(rec.RevP1, rec.ReqP1)
	ecpmP2 := ecpm(rec.RevP2, rec.ReqP2)
	ecpmSwing := math.Abs(changePct(ecpmP1, ecpmP2))
	fillDrop := rec.FillRateP1 - rec.FillRateP2

	switch {
	case reqSwing >= criticalReqSwing && ecpmSwing >= criticalEcpmSwing:
		return SeverityCritical
	case reqSwing >= warningReqSwing || ecpmSwing >= warningEcpmSwing || fillDrop >= warningFillDrop:
		return SeverityWarning
	case reqSwing >= infoReqSwing || ecpmSwing >= infoEcpmSwing:
		return SeverityInfo
	default:
		return SeverityHealthy
	}
}

// ecpm is revenue per thousand requests, 0 when there are no requests.
func ecpm(revenue float64, requests int64) float64 {
	if requests <= 0 {
		return 0
	}
	return revenue / float64(requests) * 1000
}

func strPtr(s string) *string { return &s }
