package record

import (
	"fmt"
	"strconv"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// reprMaxLen is the longest list or array shown element by element.
const reprMaxLen = 4

// ReprValue renders a value for an info table. Strings are shown as they
// are, long lists as "list", long numeric arrays as their mean in angle
// brackets and floats in %10.5g.
func ReprValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case store.Named:
		return x.Name()
	case *View:
		return x.Type().String()
	case *ListView:
		return fmt.Sprintf("%s[%d]", x.Type(), x.Len())
	case bool:
		return strconv.FormatBool(x)
	case float32:
		return fmt.Sprintf("%10.5g", x)
	case float64:
		return fmt.Sprintf("%10.5g", x)
	}
	if isInteger(v) {
		return fmt.Sprint(v)
	}
	if arr, ok := numericSlice(v); ok {
		if len(arr) > reprMaxLen {
			return fmt.Sprintf("<%.4g>", mean(arr))
		}
		return fmt.Sprint(v)
	}
	if items, ok := AsList(v); ok && len(items) > reprMaxLen {
		return "list"
	}
	return fmt.Sprint(v)
}

// InfoRow formats one info table row.
func InfoRow(name, value, unit, doc string) string {
	return fmt.Sprintf("%-24s %12s %-7s %s", name, value, unit, doc)
}
