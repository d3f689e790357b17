package postgres

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Freeeeeet/tutor_chat/internal/store"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// fieldExpr возвращает выражение data -> 'field'. Имя поля подставляется
// литералом, чтобы планировщик сопоставлял его с индексами по выражению,
// поэтому допускаются только идентификаторы.
func fieldExpr(field string) (string, error) {
	if !fieldName.MatchString(field) {
		return "", fmt.Errorf("%w: invalid field name %q", store.ErrInvalidQuery, field)
	}
	return "data -> '" + field + "'", nil
}

// buildQuery компилирует store.Query в SQL над таблицей documents.
// Значения фильтров передаются параметрами.
func buildQuery(q store.Query) (string, []any, error) {
	q, err := q.Validate()
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := []any{q.Collection}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("SELECT id, data FROM documents WHERE collection = $1")

	for _, f := range q.Filters {
		field, err := fieldExpr(f.Field)
		if err != nil {
			return "", nil, err
		}
		var value []byte
		if f.Op == store.OpArrayContains {
			value, err = json.Marshal([]any{f.Value})
		} else {
			value, err = json.Marshal(f.Value)
		}
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value: %w", err)
		}
		param := next(string(value))

		switch f.Op {
		case store.OpEqual:
			fmt.Fprintf(&sb, " AND %s = %s::jsonb", field, param)
		case store.OpIn:
			fmt.Fprintf(&sb, " AND %s IN (SELECT jsonb_array_elements(%s::jsonb))", field, param)
		case store.OpArrayContains:
			fmt.Fprintf(&sb, " AND jsonb_typeof(%s) = 'array' AND %s @> %s::jsonb", field, field, param)
		case store.OpLess, store.OpLessEqual, store.OpGreater, store.OpGreaterEqual:
			fmt.Fprintf(&sb, " AND jsonb_typeof(%s) = jsonb_typeof(%s::jsonb) AND %s %s %s::jsonb",
				field, param, field, string(f.Op), param)
		default:
			return "", nil, fmt.Errorf("%w: unknown operator %q", store.ErrInvalidQuery, f.Op)
		}
	}

	sb.WriteString(" ORDER BY ")
	for _, o := range q.Orders {
		field, err := fieldExpr(o.Field)
		if err != nil {
			return "", nil, err
		}
		if o.Dir == store.Desc {
			fmt.Fprintf(&sb, "%s DESC NULLS LAST, ", field)
		} else {
			fmt.Fprintf(&sb, "%s ASC NULLS FIRST, ", field)
		}
	}
	sb.WriteString("id ASC")

	if q.Max > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", next(q.Max))
	}

	return sb.String(), args, nil
}
