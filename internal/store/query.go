package store

import (
	"fmt"
	"sort"
	"strings"
)

// Op оператор фильтра
type Op string

const (
	OpEqual         Op = "=="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
)

// Direction направление сортировки
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter оставляет документы, у которых Field удовлетворяет Op относительно Value
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order сортирует результат по Field
type Order struct {
	Field string
	Dir   Direction
}

// Query выборка документов одной коллекции. Запрос является значением:
// каждый метод построения возвращает изменённую копию.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Max        int
}

// Collection начинает запрос по коллекции
func Collection(name string) Query {
	return Query{Collection: name}
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, dir Direction) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Dir: dir})
	return q
}

func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

// Validate проверяет запрос и нормализует значения фильтров
func (q Query) Validate() (Query, error) {
	if strings.TrimSpace(q.Collection) == "" {
		return q, fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	if q.Max < 0 {
		return q, fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		if strings.TrimSpace(f.Field) == "" {
			return q, fmt.Errorf("%w: empty filter field", ErrInvalidQuery)
		}
		v, err := Normalize(f.Value)
		if err != nil {
			return q, err
		}
		switch f.Op {
		case OpEqual, OpArrayContains, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		case OpIn:
			if _, ok := v.([]any); !ok {
				return q, fmt.Errorf("%w: %q needs a list value", ErrInvalidQuery, OpIn)
			}
		default:
			return q, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
		filters = append(filters, Filter{Field: f.Field, Op: f.Op, Value: v})
	}
	q.Filters = filters
	return q, nil
}

// Matches сообщает, проходит ли data все фильтры. Запрос должен быть
// предварительно проверен через Validate.
func (q Query) Matches(data map[string]any) bool {
	for _, f := range q.Filters {
		if !f.matches(data[f.Field]) {
			return false
		}
	}
	return true
}

func (f Filter) matches(field any) bool {
	switch f.Op {
	case OpEqual:
		return valuesEqual(field, f.Value)
	case OpIn:
		list, _ := f.Value.([]any)
		return containsValue(list, field)
	case OpArrayContains:
		arr, ok := field.([]any)
		return ok && containsValue(arr, f.Value)
	}
	c, ok := compareValues(field, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}

// Apply фильтрует, сортирует и ограничивает docs в памяти. При равенстве
// порядок определяет id.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d.Data) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.Orders {
			c, ok := compareValues(out[i].Data[o.Field], out[j].Data[o.Field])
			if !ok {
				c = compareMissing(out[i].Data[o.Field], out[j].Data[o.Field])
			}
			if c == 0 {
				continue
			}
			if o.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	if q.Max > 0 && len(out) > q.Max {
		out = out[:q.Max]
	}
	return out
}

// compareMissing ставит отсутствующие значения первыми
func compareMissing(a, b any) int {
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}
