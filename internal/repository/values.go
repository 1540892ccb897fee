package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Column values come back from lib/pq as string, int64, float64, bool, time.Time or
// nil, and from the memory store as whatever was written. These accessors accept both.

func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case json.RawMessage:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// AsStringPtr nil for NULL
func AsStringPtr(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		return t
	}
	s := AsString(v)
	return &s
}

func AsInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case decimal.Decimal:
		return t.IntPart()
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		return i
	}
	return 0
}

// AsIntPtr nil for NULL
func AsIntPtr(v any) *int {
	if v == nil {
		return nil
	}
	i := int(AsInt64(v))
	return &i
}

func AsDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case string:
		d, _ := decimal.NewFromString(strings.TrimSpace(t))
		return d
	case []byte:
		d, _ := decimal.NewFromString(strings.TrimSpace(string(t)))
		return d
	case float64:
		return decimal.NewFromFloat(t)
	case int64:
		return decimal.NewFromInt(t)
	case int:
		return decimal.NewFromInt(int64(t))
	}
	return decimal.Zero
}

func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case int64:
		return t != 0
	}
	return false
}

func AsTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// AsTimePtr nil for NULL
func AsTimePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	if p, ok := v.(*time.Time); ok {
		return p
	}
	t := AsTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// sqlValue adapts a record value for lib/pq parameters.
func sqlValue(v any) any {
	switch t := v.(type) {
	case json.RawMessage:
		if t == nil {
			return nil
		}
		return string(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return int64(*t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

// compareValues orders a and b; ok is false when they are not comparable.
func compareValues(a, b any) (int, bool) {
	a, b = sqlValue(a), sqlValue(b)
	if a == nil || b == nil {
		return 0, false
	}
	switch at := a.(type) {
	case time.Time:
		bt := AsTime(b)
		if bt.IsZero() {
			return 0, false
		}
		return at.Compare(bt), true
	case decimal.Decimal, int, int32, int64, float64:
		return AsDecimal(a).Cmp(AsDecimal(b)), true
	case bool:
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if at == bb {
			return 0, true
		}
		if !at {
			return -1, true
		}
		return 1, true
	}
	switch b.(type) {
	case decimal.Decimal, int, int32, int64, float64:
		return AsDecimal(a).Cmp(AsDecimal(b)), true
	}
	return strings.Compare(AsString(a), AsString(b)), true
}

// listValues flattens an IN operand.
func listValues(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	}
	return []any{v}
}
