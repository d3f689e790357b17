package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

type serverTimestamp struct{}

// ServerTimestamp при записи заменяется временем хранилища (unix-микросекунды)
var ServerTimestamp any = serverTimestamp{}

type arrayUnion struct{ values []any }

type arrayRemove struct{ values []any }

// ArrayUnion добавляет в поле-массив недостающие значения
func ArrayUnion(values ...any) any { return arrayUnion{values: values} }

// ArrayRemove убирает из поля-массива все вхождения значений
func ArrayRemove(values ...any) any { return arrayRemove{values: values} }

// TimeValue кодирует t так, как хранилища сохраняют время
func TimeValue(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// ToTime декодирует сохранённое время
func ToTime(v any) time.Time {
	var us int64
	switch n := v.(type) {
	case float64:
		us = int64(n)
	case int64:
		us = n
	case int:
		us = int64(n)
	case json.Number:
		us, _ = n.Int64()
	default:
		return time.Time{}
	}
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// Normalize приводит v к JSON-представлению (float64, string, bool, nil,
// []any, map[string]any), чтобы все бэкенды сравнивали одинаковые значения
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// ApplyFields возвращает копию base с применёнными fields. Трансформации
// вычисляются относительно now (unix-микросекунды).
func ApplyFields(base, fields map[string]any, now int64) (map[string]any, error) {
	out := make(map[string]any, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for key, value := range fields {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidQuery)
		}
		switch t := value.(type) {
		case serverTimestamp:
			out[key] = float64(now)
		case arrayUnion:
			current := asArray(out[key])
			for _, raw := range t.values {
				v, err := Normalize(raw)
				if err != nil {
					return nil, err
				}
				if !containsValue(current, v) {
					current = append(current, v)
				}
			}
			out[key] = current
		case arrayRemove:
			current := asArray(out[key])
			kept := make([]any, 0, len(current))
			for _, existing := range current {
				drop := false
				for _, raw := range t.values {
					v, err := Normalize(raw)
					if err != nil {
						return nil, err
					}
					if valuesEqual(existing, v) {
						drop = true
						break
					}
				}
				if !drop {
					kept = append(kept, existing)
				}
			}
			out[key] = kept
		default:
			v, err := Normalize(value)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
	}
	return out, nil
}

func asArray(v any) []any {
	arr, ok := v.([]any)
	if !ok {
		return []any{}
	}
	cp := make([]any, len(arr))
	copy(cp, arr)
	return cp
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if valuesEqual(e, v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues сравнивает два скаляра одного JSON-типа
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// CopyData глубоко копирует данные документа
func CopyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = copyValue(e)
		}
		return cp
	case map[string]any:
		return CopyData(t)
	}
	return v
}
