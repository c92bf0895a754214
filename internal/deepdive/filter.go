package deepdive

import (
	"fmt"
	"strconv"
	"strings"
)

// CompileFilter translates a FilterSpec into a warehouse WHERE predicate
// against table, with entity-quantified clauses compiled to correlated
// subqueries grouped by entityKeyCol.
//
// An empty or fully disabled clause list compiles to TRUE, never to an
// empty string that could corrupt the surrounding query. That holds under
// EXCLUDE too (exclude-nothing matches everything).
func CompileFilter(spec FilterSpec, table, entityKeyCol string) (string, error) {
	parts := make([]string, 0, len(spec.Clauses))
	for i, clause := range spec.Clauses {
		if !clause.Enabled {
			continue
		}
		sql, err := compileClause(clause, i, table, entityKeyCol)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	if len(parts) == 0 {
		return "TRUE", nil
	}

	joiner := " AND "
	if spec.Logic == LogicOr {
		joiner = " OR "
	}
	predicate := strings.Join(parts, joiner)
	if len(parts) > 1 {
		predicate = "(" + predicate + ")"
	}

	if spec.Mode == Exclude {
		predicate = "NOT " + wrap(predicate)
	}
	return predicate, nil
}

func wrap(s string) string {
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return s
	}
	return "(" + s + ")"
}

func compileClause(clause FilterClause, idx int, table, entityKeyCol string) (string, error) {
	field := fmt.Sprintf("clauses[%d]", idx)
	col, ok := FilterableColumns[clause.Field]
	if !ok {
		return "", &ValidationError{Field: field + ".field", Msg: fmt.Sprintf("unknown filter field %q", clause.Field)}
	}

	switch clause.Operator {
	case OpEquals, OpNotEquals, OpGt, OpGte, OpLt, OpLte, OpLike, OpNotLike:
		lit, err := renderLiteral(clause.Value, clause.DataType, field+".value")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, clause.Operator, lit), nil

	case OpIn, OpNotIn:
		list, err := renderList(clause.Values, clause.DataType, field+".values")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s (%s)", col, clause.Operator, list), nil

	case OpEntityHas, OpEntityNotHas:
		if len(clause.Values) > 0 {
			return "", &ValidationError{Field: field + ".values", Msg: string(clause.Operator) + " takes a single value"}
		}
		lit, err := renderLiteral(clause.Value, clause.DataType, field+".value")
		if err != nil {
			return "", err
		}
		membership := "IN"
		if clause.Operator == OpEntityNotHas {
			membership = "NOT IN"
		}
		return fmt.Sprintf("%s %s (SELECT %s FROM %s WHERE %s = %s)",
			entityKeyCol, membership, entityKeyCol, table, col, lit), nil

	case OpEntityHasAny:
		list, err := renderList(clause.Values, clause.DataType, field+".values")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s IN (%s))",
			entityKeyCol, entityKeyCol, table, col, list), nil

	case OpEntityHasAll:
		list, err := renderList(clause.Values, clause.DataType, field+".values")
		if err != nil {
			return "", err
		}
		// Entity must match every listed value: the distinct count of its
		// matching rows restricted to the set equals the set size.
		return fmt.Sprintf(
			"%s IN (SELECT %s FROM %s WHERE %s IN (%s) GROUP BY %s HAVING COUNT(DISTINCT %s) = %d)",
			entityKeyCol, entityKeyCol, table, col, list, entityKeyCol, col, len(clause.Values)), nil

	case OpEntityOnlyHas:
		list, err := renderList(clause.Values, clause.DataType, field+".values")
		if err != nil {
			return "", err
		}
		n := len(clause.Values)
		// Exact set equality: the entity carries all n values AND carries
		// exactly n distinct values overall (no extras).
		hasAll := fmt.Sprintf(
			"%s IN (SELECT %s FROM %s WHERE %s IN (%s) GROUP BY %s HAVING COUNT(DISTINCT %s) = %d)",
			entityKeyCol, entityKeyCol, table, col, list, entityKeyCol, col, n)
		onlyN := fmt.Sprintf(
			"%s IN (SELECT %s FROM %s GROUP BY %s HAVING COUNT(DISTINCT %s) = %d)",
			entityKeyCol, entityKeyCol, table, entityKeyCol, col, n)
		return "(" + hasAll + " AND " + onlyN + ")", nil

	default:
		return "", &ValidationError{Field: field + ".operator", Msg: fmt.Sprintf("unsupported operator %q", clause.Operator)}
	}
}

// renderLiteral renders one user-supplied scalar for interpolation.
func renderLiteral(value string, kind ValueKind, field string) (string, error) {
	if value == "" {
		return "", &ValidationError{Field: field, Msg: "value required"}
	}
	if kind == KindNumber {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "", &ValidationError{Field: field, Msg: fmt.Sprintf("not a number: %q", value)}
		}
		return value, nil
	}
	return quoteLiteral(value), nil
}

func renderList(values []string, kind ValueKind, field string) (string, error) {
	if len(values) == 0 {
		return "", &ValidationError{Field: field, Msg: "at least one value required"}
	}
	rendered := make([]string, len(values))
	for i, v := range values {
		lit, err := renderLiteral(v, kind, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return "", err
		}
		rendered[i] = lit
	}
	return strings.Join(rendered, ", "), nil
}

// quoteLiteral is the single audited escaping function: every user string
// that reaches query text passes through here. Backslashes are doubled
// first (Snowflake treats backslash as an escape inside string constants),
// then single quotes; NUL bytes are stripped.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return "'" + s + "'"
}
