package deepdive

import (
	"context"
	"fmt"
	"sort"

	"github.com/adpulse/perftracker/internal/pkg/logger"
)

// Service is the deep-dive comparison entrypoint: it validates the
// request, compiles the filter, aggregates both periods and runs the
// tiering engine.
type Service struct {
	aggregator *Aggregator
	table      string
	maxRows    int
}

// NewService wires the service over a metric source. maxRows caps the
// result set; 0 disables the cap.
func NewService(source MetricSource, table string, maxRows int) *Service {
	return &Service{
		aggregator: NewAggregator(source, table),
		table:      table,
		maxRows:    maxRows,
	}
}

// Compare runs the full deep-dive pipeline for one request.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*CompareResult, error) {
	spec, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	predicate, err := s.buildPredicate(req, spec)
	if err != nil {
		return nil, err
	}

	logger.Debug("deepdive compare",
		"perspective", string(spec.Perspective),
		"period1", req.Period1.Start+".."+req.Period1.End,
		"period2", req.Period2.Start+".."+req.Period2.End,
	)

	merged, err := s.aggregator.Aggregate(ctx, spec, req.Period1, req.Period2, predicate)
	if err != nil {
		return nil, err
	}

	tiered := Tier(merged)
	summary := Summarize(tiered)
	if s.maxRows > 0 && len(tiered) > s.maxRows {
		logger.Warn("deepdive result truncated", "total", len(tiered), "returned", s.maxRows)
		tiered = tiered[:s.maxRows]
	}

	return &CompareResult{Data: tiered, Summary: summary}, nil
}

func (s *Service) validate(req CompareRequest) (PerspectiveSpec, error) {
	spec, err := ParsePerspective(req.Perspective)
	if err != nil {
		return PerspectiveSpec{}, err
	}
	if err := req.Period1.Validate("period1"); err != nil {
		return PerspectiveSpec{}, err
	}
	if err := req.Period2.Validate("period2"); err != nil {
		return PerspectiveSpec{}, err
	}
	for field := range req.Filters {
		if _, ok := FilterableColumns[field]; !ok {
			return PerspectiveSpec{}, &ValidationError{
				Field: "filters." + field,
				Msg:   fmt.Sprintf("unknown filter field %q", field),
			}
		}
	}
	if req.SimplifiedFilter != nil {
		if err := validateFilterSpec(req.SimplifiedFilter); err != nil {
			return PerspectiveSpec{}, err
		}
	}
	return spec, nil
}

// validateFilterSpec enforces clause arity before any SQL is built:
// list operators need Values, scalar operators need Value.
func validateFilterSpec(spec *FilterSpec) error {
	switch spec.Mode {
	case "", Include, Exclude:
	default:
		return &ValidationError{Field: "simplifiedFilter.include_exclude", Msg: fmt.Sprintf("must be INCLUDE or EXCLUDE, got %q", spec.Mode)}
	}
	switch spec.Logic {
	case "", LogicAnd, LogicOr:
	default:
		return &ValidationError{Field: "simplifiedFilter.clause_logic", Msg: fmt.Sprintf("must be AND or OR, got %q", spec.Logic)}
	}
	for i, clause := range spec.Clauses {
		if !clause.Enabled {
			continue
		}
		field := fmt.Sprintf("simplifiedFilter.clauses[%d]", i)
		switch clause.Operator {
		case OpIn, OpNotIn, OpEntityHasAll, OpEntityHasAny, OpEntityOnlyHas:
			if len(clause.Values) == 0 {
				return &ValidationError{Field: field + ".values", Msg: string(clause.Operator) + " requires a value list"}
			}
			if clause.Value != "" {
				return &ValidationError{Field: field + ".value", Msg: string(clause.Operator) + " takes a list, not a scalar"}
			}
		case OpEquals, OpNotEquals, OpGt, OpGte, OpLt, OpLte, OpLike, OpNotLike, OpEntityHas, OpEntityNotHas:
			if clause.Value == "" {
				return &ValidationError{Field: field + ".value", Msg: string(clause.Operator) + " requires a value"}
			}
			if len(clause.Values) > 0 {
				return &ValidationError{Field: field + ".values", Msg: string(clause.Operator) + " takes a scalar, not a list"}
			}
		default:
			return &ValidationError{Field: field + ".operator", Msg: fmt.Sprintf("unsupported operator %q", clause.Operator)}
		}
	}
	return nil
}

// buildPredicate folds the legacy key/value filter map and the
// structured filter into one WHERE fragment. Map entries become ANDed
// equality clauses ahead of the structured group.
func (s *Service) buildPredicate(req CompareRequest, spec PerspectiveSpec) (string, error) {
	merged := FilterSpec{Mode: Include, Logic: LogicAnd}
	for _, field := range sortedKeys(req.Filters) {
		merged.Clauses = append(merged.Clauses, SimpleClause(field, OpEquals, req.Filters[field]))
	}

	mapPredicate, err := CompileFilter(merged, s.table, spec.KeyColumn)
	if err != nil {
		return "", err
	}

	if req.SimplifiedFilter == nil {
		return mapPredicate, nil
	}
	structured, err := CompileFilter(*req.SimplifiedFilter, s.table, spec.KeyColumn)
	if err != nil {
		return "", err
	}
	if mapPredicate == "TRUE" {
		return structured, nil
	}
	if structured == "TRUE" {
		return mapPredicate, nil
	}
	return "(" + mapPredicate + ") AND (" + structured + ")", nil
}

// sortedKeys keeps the compiled predicate deterministic across runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
