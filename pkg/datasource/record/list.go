package record

import (
	"sort"

	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// ListView vectorizes the fields of a sequence of same-typed records.
// Each field becomes one column holding the field's value for every
// element. It is not safe for concurrent use.
type ListView struct {
	typ    store.TypeID
	items  []*View
	fields []string

	columns map[string]any
}

// NewListView wraps a sequence of records. The element type and field list
// are taken from the first record.
func NewListView(recs []store.Record, table *schema.Table) *ListView {
	views := make([]*View, len(recs))
	for i, rec := range recs {
		views[i] = NewView(rec, table)
	}
	return newListView(views)
}

func newListView(views []*View) *ListView {
	l := &ListView{items: views, columns: make(map[string]any)}
	if len(views) > 0 {
		l.typ = views[0].Type()
		l.fields = views[0].Fields()
	}
	return l
}

// Type returns the element type.
func (l *ListView) Type() store.TypeID { return l.typ }

// Len returns the number of elements.
func (l *ListView) Len() int { return len(l.items) }

// Item returns the view of element i.
func (l *ListView) Item(i int) *View { return l.items[i] }

// Items returns the element views.
func (l *ListView) Items() []*View {
	out := make([]*View, len(l.items))
	copy(out, l.items)
	return out
}

// Fields returns the element type's field names.
func (l *ListView) Fields() []string {
	out := make([]string, len(l.fields))
	copy(out, l.fields)
	return out
}

// Value returns the column for a field. Scalar fields come back as typed
// slices ([]float64, []int64, []string, []bool), equal-length numeric
// arrays as [][]float64 and nested record fields as a child *ListView.
// Flattened names such as "field_child" are accepted too.
func (l *ListView) Value(name string) any {
	if col, ok := l.columns[name]; ok {
		return col
	}
	if l.has(name) {
		col := l.column(name)
		l.columns[name] = col
		return col
	}
	if v, ok := l.Flatten()[name]; ok {
		return v
	}
	return nil
}

func (l *ListView) has(name string) bool {
	for _, f := range l.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Flatten returns every column with nested record fields spliced in as
// "field_child".
func (l *ListView) Flatten() map[string]any {
	out := make(map[string]any, len(l.fields))
	for _, name := range l.fields {
		flattenInto(out, name, l.Value(name))
	}
	return out
}

// Names returns the flattened column names, sorted.
func (l *ListView) Names() []string {
	flat := l.Flatten()
	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info renders one row per flattened column, sorted by name.
func (l *ListView) Info(prefix string) []string {
	var unitOf func(string) schema.Field
	if len(l.items) > 0 {
		unitOf = l.items[0].Field
	}
	names := l.Fields()
	sort.Strings(names)
	var rows []string
	for _, name := range names {
		label := name
		if prefix != "" {
			label = prefix + "_" + name
		}
		col := l.Value(name)
		if child, ok := col.(*ListView); ok {
			rows = append(rows, child.Info(label)...)
			continue
		}
		var f schema.Field
		if unitOf != nil {
			f = unitOf(name)
		}
		rows = append(rows, InfoRow(label, ReprValue(col), f.Unit, f.Doc))
	}
	return rows
}

func (l *ListView) column(name string) any {
	vals := make([]any, len(l.items))
	for i, item := range l.items {
		vals[i] = item.Value(name)
	}
	return vectorize(vals)
}

// vectorize packs per-element values into the narrowest column type.
func vectorize(vals []any) any {
	if len(vals) == 0 {
		return []any{}
	}
	if views, ok := allViews(vals); ok {
		return newListView(views)
	}
	switch vals[0].(type) {
	case bool:
		return packBools(vals)
	case string:
		return packStrings(vals)
	}
	if col, ok := packInts(vals); ok {
		return col
	}
	if col, ok := packFloats(vals); ok {
		return col
	}
	if col, ok := packArrays(vals); ok {
		return col
	}
	return vals
}

func allViews(vals []any) ([]*View, bool) {
	out := make([]*View, len(vals))
	for i, v := range vals {
		view, ok := v.(*View)
		if !ok {
			return nil, false
		}
		out[i] = view
	}
	return out, true
}

func packBools(vals []any) any {
	out := make([]bool, len(vals))
	for i, v := range vals {
		b, ok := v.(bool)
		if !ok {
			return vals
		}
		out[i] = b
	}
	return out
}

func packStrings(vals []any) any {
	out := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return vals
		}
		out[i] = s
	}
	return out
}

func packInts(vals []any) ([]int64, bool) {
	out := make([]int64, len(vals))
	for i, v := range vals {
		n, ok := AsInt64(v)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func packFloats(vals []any) ([]float64, bool) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := AsFloat(v)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// packArrays packs equal-length numeric arrays into rows.
func packArrays(vals []any) ([][]float64, bool) {
	out := make([][]float64, len(vals))
	for i, v := range vals {
		arr, ok := numericArray(v)
		if !ok {
			return nil, false
		}
		if i > 0 && len(arr) != len(out[0]) {
			return nil, false
		}
		out[i] = arr
	}
	return out, true
}
