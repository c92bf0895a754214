// Package deepdive implements the Performance Tracker deep-dive engine:
// period-over-period comparison of ad-revenue metrics per entity, Pareto
// revenue tiering, status transitions, and anomaly warnings.
package deepdive

import (
	"fmt"
	"time"
)

// ==========================================
// PERSPECTIVES
// ==========================================

// Perspective is the grouping dimension for a deep-dive: which entity the
// warehouse rows are rolled up by.
type Perspective string

const (
	PerspectivePublisher Perspective = "pid"
	PerspectiveProduct   Perspective = "product"
	PerspectiveMedia     Perspective = "mid"
	PerspectiveZone      Perspective = "zone"
	PerspectivePIC       Perspective = "pic"
)

// PerspectiveSpec maps a perspective to its warehouse columns.
type PerspectiveSpec struct {
	Perspective Perspective `json:"perspective"`
	Label       string      `json:"label"`
	KeyColumn   string      `json:"-"`
	LabelColumn string      `json:"-"` // empty when the key is its own label
}

var perspectiveSpecs = map[Perspective]PerspectiveSpec{
	PerspectivePublisher: {PerspectivePublisher, "Publisher", "PID", "PUBLISHER_NAME"},
	PerspectiveProduct:   {PerspectiveProduct, "Product", "PRODUCT", ""},
	PerspectiveMedia:     {PerspectiveMedia, "Media", "MID", "MEDIA_NAME"},
	PerspectiveZone:      {PerspectiveZone, "Zone", "ZONE_ID", "ZONE_NAME"},
	PerspectivePIC:       {PerspectivePIC, "Person in charge", "PIC", ""},
}

// ParsePerspective validates a perspective string from the API layer.
func ParsePerspective(s string) (PerspectiveSpec, error) {
	spec, ok := perspectiveSpecs[Perspective(s)]
	if !ok {
		return PerspectiveSpec{}, &ValidationError{Field: "perspective", Msg: fmt.Sprintf("unknown perspective %q", s)}
	}
	return spec, nil
}

// Perspectives returns all perspective specs in a stable order, for the UI.
func Perspectives() []PerspectiveSpec {
	return []PerspectiveSpec{
		perspectiveSpecs[PerspectivePublisher],
		perspectiveSpecs[PerspectiveProduct],
		perspectiveSpecs[PerspectiveMedia],
		perspectiveSpecs[PerspectiveZone],
		perspectiveSpecs[PerspectivePIC],
	}
}

// FilterableColumns maps the field names accepted in filter clauses and
// simple key-value filters to warehouse columns. Field names never reach
// the query text without passing through this table.
var FilterableColumns = map[string]string{
	"pid":            "PID",
	"publisher_name": "PUBLISHER_NAME",
	"product":        "PRODUCT",
	"mid":            "MID",
	"media_name":     "MEDIA_NAME",
	"zone":           "ZONE_ID",
	"zone_name":      "ZONE_NAME",
	"pic":            "PIC",
	"country":        "COUNTRY",
	"device":         "DEVICE",
	"ad_format":      "AD_FORMAT",
	"demand_channel": "DEMAND_CHANNEL",
}

// ==========================================
// PERIODS & RAW ROWS
// ==========================================

// DateRange is an inclusive calendar-date interval.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks both bounds parse as ISO dates and are ordered.
func (r DateRange) Validate(field string) error {
	start, err := time.Parse("2006-01-02", r.Start)
	if err != nil {
		return &ValidationError{Field: field + ".start", Msg: fmt.Sprintf("invalid date %q", r.Start)}
	}
	end, err := time.Parse("2006-01-02", r.End)
	if err != nil {
		return &ValidationError{Field: field + ".end", Msg: fmt.Sprintf("invalid date %q", r.End)}
	}
	if end.Before(start) {
		return &ValidationError{Field: field, Msg: "end date before start date"}
	}
	return nil
}

// EntityMetricRow is one grouped warehouse row for a single period.
type EntityMetricRow struct {
	Key          string
	Label        string
	Revenue      float64
	Requests     int64
	PaidRequests int64
}

// MetricQuery describes one grouped-aggregation warehouse query.
// The predicate must already be compiled and escaped.
type MetricQuery struct {
	Table       string
	KeyColumn   string
	LabelColumn string
	Predicate   string
	Range       DateRange
}

// ==========================================
// MERGED & TIERED RECORDS
// ==========================================

// MergedEntityRecord joins two periods' metrics for one entity.
// Entities missing from a period carry zeroes, never nulls; the status
// classification depends on that.
type MergedEntityRecord struct {
	EntityKey string  `json:"entity_key"`
	Label     string  `json:"label,omitempty"`
	RevP1     float64 `json:"rev_p1"`
	RevP2     float64 `json:"rev_p2"`
	ReqP1     int64   `json:"req_p1"`
	ReqP2     int64   `json:"req_p2"`
	PaidP1    int64   `json:"paid_p1"`
	PaidP2    int64   `json:"paid_p2"`

	// Derived once at merge time.
	RevChangePct float64 `json:"rev_change_pct"`
	ReqChangePct float64 `json:"req_change_pct"`
	FillRateP1   float64 `json:"fill_rate_p1"`
	FillRateP2   float64 `json:"fill_rate_p2"`
}

// Status classifies an entity's presence across the two periods.
type Status string

const (
	StatusExisting Status = "existing"
	StatusNew      Status = "new"
	StatusLost     Status = "lost"
)

// Severity is the anomaly signal level, ordered healthy < info < warning < critical.
type Severity string

const (
	SeverityHealthy  Severity = "healthy"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Revenue tiers (Pareto buckets over cumulative period-2 revenue share).
const (
	TierA = "A"
	TierB = "B"
	TierC = "C"

	DisplayNew  = "NEW"
	DisplayLost = "LOST"
)

// TieredRecord is a merged record enriched by the tiering engine.
type TieredRecord struct {
	MergedEntityRecord

	CumulativeRevenue    float64  `json:"cumulative_revenue"`
	CumulativeRevenuePct float64  `json:"cumulative_revenue_pct"`
	RevenueTier          string   `json:"revenue_tier"`
	Status               Status   `json:"status"`
	DisplayTier          string   `json:"display_tier"`
	TierGroup            string   `json:"tier_group"`
	TransitionWarning    *string  `json:"transition_warning"`
	WarningSeverity      Severity `json:"warning_severity"`
}

// Summary aggregates a tiered result set.
type Summary struct {
	TotalItems       int            `json:"total_items"`
	TotalRevenueP1   float64        `json:"total_revenue_p1"`
	TotalRevenueP2   float64        `json:"total_revenue_p2"`
	TotalRequestsP1  int64          `json:"total_requests_p1"`
	TotalRequestsP2  int64          `json:"total_requests_p2"`
	RevenueChangePct float64        `json:"revenue_change_pct"`
	RequestChangePct float64        `json:"request_change_pct"`
	TierCounts       map[string]int `json:"tier_counts"`
}

// ==========================================
// FILTERS
// ==========================================

// Operator is a filter comparison operator. Simple operators compare one
// warehouse row; entity-quantified operators quantify over all rows of an
// entity via correlated subqueries.
type Operator string

const (
	// Simple per-row operators
	OpEquals    Operator = "="
	OpNotEquals Operator = "!="
	OpGt        Operator = ">"
	OpGte       Operator = ">="
	OpLt        Operator = "<"
	OpLte       Operator = "<="
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT IN"
	OpLike      Operator = "LIKE"
	OpNotLike   Operator = "NOT LIKE"

	// Entity-quantified operators
	OpEntityHas     Operator = "entity_has"
	OpEntityNotHas  Operator = "entity_not_has"
	OpEntityHasAll  Operator = "entity_has_all"
	OpEntityHasAny  Operator = "entity_has_any"
	OpEntityOnlyHas Operator = "entity_only_has"
)

// ValueKind tells the compiler how to render a literal.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
)

// IncludeExclude flips the whole filter group.
type IncludeExclude string

const (
	Include IncludeExclude = "INCLUDE"
	Exclude IncludeExclude = "EXCLUDE"
)

// ClauseLogic joins clauses inside a group.
type ClauseLogic string

const (
	LogicAnd ClauseLogic = "AND"
	LogicOr  ClauseLogic = "OR"
)

// FilterClause is one condition. Scalar operators (and entity_has /
// entity_not_has) carry Value; list operators carry Values. The arity is
// enforced at validation time, before any SQL is built.
type FilterClause struct {
	Field    string    `json:"field"`
	Operator Operator  `json:"operator"`
	Value    string    `json:"value,omitempty"`
	Values   []string  `json:"values,omitempty"`
	DataType ValueKind `json:"data_type,omitempty"`
	Enabled  bool      `json:"enabled"`
}

// SimpleClause builds an enabled per-row clause.
func SimpleClause(field string, op Operator, value string) FilterClause {
	return FilterClause{Field: field, Operator: op, Value: value, Enabled: true}
}

// QuantifiedClause builds an enabled entity-quantified clause over a value set.
func QuantifiedClause(field string, op Operator, values ...string) FilterClause {
	return FilterClause{Field: field, Operator: op, Values: values, Enabled: true}
}

// FilterSpec is the declarative filter sent by the UI filter builder.
// An empty (or fully disabled) clause list matches everything, regardless
// of Mode.
type FilterSpec struct {
	Mode    IncludeExclude `json:"include_exclude"`
	Logic   ClauseLogic    `json:"clause_logic"`
	Clauses []FilterClause `json:"clauses"`
}

// OperatorMetadata describes one operator for the UI filter builder.
type OperatorMetadata struct {
	Operator      Operator `json:"operator"`
	Label         string   `json:"label"`
	Quantified    bool     `json:"quantified"`
	RequiresArray bool     `json:"requires_array"`
}

// GetOperatorMetadata returns metadata for all supported operators.
func GetOperatorMetadata() []OperatorMetadata {
	return []OperatorMetadata{
		{OpEquals, "Equals", false, false},
		{OpNotEquals, "Does not equal", false, false},
		{OpGt, "Greater than", false, false},
		{OpGte, "Greater than or equal", false, false},
		{OpLt, "Less than", false, false},
		{OpLte, "Less than or equal", false, false},
		{OpIn, "Is one of", false, true},
		{OpNotIn, "Is not one of", false, true},
		{OpLike, "Matches pattern", false, false},
		{OpNotLike, "Does not match pattern", false, false},
		{OpEntityHas, "Entity has value", true, false},
		{OpEntityNotHas, "Entity does not have value", true, false},
		{OpEntityHasAll, "Entity has all of", true, true},
		{OpEntityHasAny, "Entity has any of", true, true},
		{OpEntityOnlyHas, "Entity has exactly", true, true},
	}
}

// ==========================================
// REQUEST / RESULT
// ==========================================

// CompareRequest is the deep-dive input contract.
type CompareRequest struct {
	Perspective      string            `json:"perspective"`
	Period1          DateRange         `json:"period1"`
	Period2          DateRange         `json:"period2"`
	Filters          map[string]string `json:"filters,omitempty"`
	SimplifiedFilter *FilterSpec       `json:"simplifiedFilter,omitempty"`
}

// CompareResult is the deep-dive output: records in engine order plus the
// reduced summary. The ordering is part of the contract.
type CompareResult struct {
	Data    []TieredRecord `json:"data"`
	Summary Summary        `json:"summary"`
}
