package record

import (
	"fmt"
	"math"
	"reflect"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// AsList returns the elements of a slice or array. Strings and byte slices
// are scalars.
func AsList(v any) ([]any, bool) {
	switch x := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		return x, true
	case []store.Record:
		out := make([]any, len(x))
		for i, rec := range x {
			out[i] = rec
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// truncate shortens a slice to n elements, keeping its element type.
func truncate(v any, n int) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && n < rv.Len() {
		return rv.Slice(0, n).Interface()
	}
	if items, ok := AsList(v); ok && n < len(items) {
		return items[:n]
	}
	return v
}

// AsFloat converts any integer or floating-point value to float64.
func AsFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isInteger(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// AsInt64 converts an integer of any width to int64. Unsigned values
// above math.MaxInt64 do not fit and report false.
func AsInt64(v any) (int64, bool) {
	if !isInteger(v) {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return rv.Int(), true
}

// AsInt converts a number to int. A list contributes its first element,
// the way a shape does.
func AsInt(v any) (int, bool) {
	if items, ok := AsList(v); ok {
		if len(items) == 0 {
			return 0, false
		}
		v = items[0]
	}
	f, ok := AsFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// numericSlice reports whether v is a typed slice or array of numbers and
// returns its elements as float64.
func numericSlice(v any) ([]float64, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	switch rv.Type().Elem().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return nil, false
	}
	out := make([]float64, rv.Len())
	for i := range out {
		out[i], _ = AsFloat(rv.Index(i).Interface())
	}
	return out, true
}

// numericArray returns the elements of any list whose elements are all numbers.
func numericArray(v any) ([]float64, bool) {
	if arr, ok := numericSlice(v); ok {
		return arr, true
	}
	items, ok := AsList(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := AsFloat(item)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// recordList returns the elements as records if every element is one.
func recordList(items []any) ([]store.Record, bool) {
	if len(items) == 0 {
		return nil, false
	}
	out := make([]store.Record, len(items))
	for i, item := range items {
		rec, ok := item.(store.Record)
		if !ok {
			return nil, false
		}
		out[i] = rec
	}
	return out, true
}

func hexString(v any) (string, error) {
	if !isInteger(v) {
		return "", fmt.Errorf("hex: element %v (%T) is not an integer", v, v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fmt.Sprintf("0x%x", rv.Uint()), nil
	}
	return fmt.Sprintf("0x%x", rv.Int()), nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// AsString renders a scalar as a string. Enum-like values give their name.
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case store.Named:
		return x.Name()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
