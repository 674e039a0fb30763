package selector

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// literal parses quoted strings, booleans, null and numbers.
func literal(s string) (any, bool) {
	if s == "" {
		return "", true
	}
	if len(s) >= 2 && (s[0] == '\'' && s[len(s)-1] == '\'' || s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1], true
	}
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "nil":
		return nil, true
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

// IsTruthy reports whether a value is truthy: nil, false, zero numbers,
// empty strings and empty lists are false.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// ToFloat64 converts a numeric value or numeric string to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint8:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func equals(l, r any) bool {
	if lf, ok := ToFloat64(l); ok {
		if rf, ok := ToFloat64(r); ok {
			if _, isStr := l.(string); !isStr {
				return lf == rf
			}
		}
	}
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r)
}

func ordered(cmp func(l, r float64) bool) BinaryOp {
	return func(l, r any) bool {
		lf, ok := ToFloat64(l)
		if !ok {
			return false
		}
		rf, ok := ToFloat64(r)
		if !ok {
			return false
		}
		return cmp(lf, rf)
	}
}

func contains(l, r any) bool {
	if l == nil {
		return false
	}
	if s, ok := l.(string); ok {
		return strings.Contains(s, fmt.Sprintf("%v", r))
	}
	rv := reflect.ValueOf(l)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return strings.Contains(fmt.Sprintf("%v", l), fmt.Sprintf("%v", r))
	}
	for i := 0; i < rv.Len(); i++ {
		if equals(rv.Index(i).Interface(), r) {
			return true
		}
	}
	return false
}
