package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	dserrors "github.com/randalmurphal/datasource/pkg/datasource/errors"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Strategy names the decoding step that produced a field value.
type Strategy int

const (
	// StrategyRaw means every step failed and the value is the last raw
	// accessor result seen, possibly nil.
	StrategyRaw Strategy = iota
	StrategyIndexed
	StrategyHexIndexed
	StrategyIndexName
	StrategyPostProcess
	StrategyDirect
	StrategyEnumName
	// StrategyCall is a plain zero-argument accessor call.
	StrategyCall
	// StrategyName is a call whose enum-like result was replaced by its name.
	StrategyName
	// StrategyList is a call whose record-list result was wrapped in a ListView.
	StrategyList
	// StrategyRecord is a call whose record result was wrapped in a View.
	StrategyRecord
)

var strategyNames = [...]string{
	StrategyRaw:         "raw",
	StrategyIndexed:     "indexed",
	StrategyHexIndexed:  "hex-indexed",
	StrategyIndexName:   "index-name",
	StrategyPostProcess: "post-process",
	StrategyDirect:      "direct",
	StrategyEnumName:    "enum-name",
	StrategyCall:        "call",
	StrategyName:        "name",
	StrategyList:        "list",
	StrategyRecord:      "record",
}

// String returns the strategy name.
func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

// Resolution is the outcome of resolving one field.
type Resolution struct {
	// Value is the resolved value.
	Value any
	// Strategy is the step that produced Value.
	Strategy Strategy
	// Failures holds a *errors.FieldResolutionError for every step that
	// failed before Value was produced.
	Failures []error
	// Fallback is set when no step succeeded.
	Fallback bool
}

// Err joins the recorded failures, or returns nil.
func (r Resolution) Err() error {
	return errors.Join(r.Failures...)
}

// Attr is a resolved field with its metadata.
type Attr struct {
	Name  string
	Value any
	Unit  string
	Doc   string
}

var errNoName = errors.New("value has no name")

// View is the attribute view of one opaque record. It is not safe for
// concurrent use.
type View struct {
	rec    store.Record
	table  *schema.Table
	schema *schema.TypeSchema
	fields []string

	cache     map[string]Resolution
	resolving map[string]bool
}

// NewView wraps a record. The table may be nil, in which case only the
// record's runtime accessors are known.
func NewView(rec store.Record, table *schema.Table) *View {
	v := &View{
		rec:       rec,
		table:     table,
		cache:     make(map[string]Resolution),
		resolving: make(map[string]bool),
	}
	if table != nil {
		if s, ok := table.Lookup(rec.Type()); ok {
			v.schema = s
		}
	}
	v.fields = v.discover()
	return v
}

// discover lists the schema fields present on the record, or every public
// accessor when the type has no schema.
func (v *View) discover() []string {
	accessors := v.rec.Accessors()
	if v.schema == nil {
		out := make([]string, 0, len(accessors))
		for _, name := range accessors {
			if isPublicField(name) {
				out = append(out, name)
			}
		}
		return out
	}

	names := v.schema.Names()
	if len(accessors) == 0 {
		return names
	}
	present := make(map[string]bool, len(accessors))
	for _, name := range accessors {
		present[name] = true
	}
	out := names[:0]
	for _, name := range names {
		if present[name] {
			out = append(out, name)
		}
	}
	return out
}

func isPublicField(name string) bool {
	if name == "" || strings.HasPrefix(name, "_") {
		return false
	}
	for _, r := range name {
		return !unicode.IsUpper(r)
	}
	return false
}

// Type returns the record type.
func (v *View) Type() store.TypeID { return v.rec.Type() }

// Record returns the wrapped record.
func (v *View) Record() store.Record { return v.rec }

// Schema returns the type schema, or nil if the type has none.
func (v *View) Schema() *schema.TypeSchema { return v.schema }

// Fields returns the field names in schema order.
func (v *View) Fields() []string {
	out := make([]string, len(v.fields))
	copy(out, v.fields)
	return out
}

// Has reports whether name is one of the view's fields.
func (v *View) Has(name string) bool {
	for _, f := range v.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Field returns the schema entry for a field. Fields without one get a
// bare entry with the default decoding.
func (v *View) Field(name string) schema.Field {
	if v.schema != nil {
		if f, ok := v.schema.Field(name); ok {
			return f
		}
	}
	return schema.Field{Name: name}
}

// Value resolves a field and returns its value. It never fails.
func (v *View) Value(name string) any {
	return v.Resolve(name).Value
}

// Attr resolves a field and returns it with its unit and doc.
func (v *View) Attr(name string) Attr {
	f := v.Field(name)
	return Attr{Name: name, Value: v.Value(name), Unit: f.Unit, Doc: f.Doc}
}

// Values resolves every field.
func (v *View) Values() map[string]any {
	out := make(map[string]any, len(v.fields))
	for _, name := range v.fields {
		out[name] = v.Value(name)
	}
	return out
}

// Flatten resolves every field and expands nested views into
// "parent_child" names.
func (v *View) Flatten() map[string]any {
	out := make(map[string]any, len(v.fields))
	for _, name := range v.fields {
		flattenInto(out, name, v.Value(name))
	}
	return out
}

func flattenInto(out map[string]any, name string, value any) {
	var nested map[string]any
	switch child := value.(type) {
	case *View:
		nested = child.Flatten()
	case *ListView:
		nested = child.Flatten()
	default:
		out[name] = value
		return
	}
	for k, cv := range nested {
		out[name+"_"+k] = cv
	}
}

// Info renders one row per field, sorted by name. Nested views are
// expanded with their rows prefixed by the parent field name.
func (v *View) Info(prefix string) []string {
	names := v.Fields()
	sort.Strings(names)
	var rows []string
	for _, name := range names {
		rows = append(rows, v.infoRows(name, prefix)...)
	}
	return rows
}

func (v *View) infoRows(name, prefix string) []string {
	label := name
	if prefix != "" {
		label = prefix + "_" + name
	}
	a := v.Attr(name)
	switch child := a.Value.(type) {
	case *View:
		return child.Info(label)
	case *ListView:
		return child.Info(label)
	}
	return []string{InfoRow(label, ReprValue(a.Value), a.Unit, a.Doc)}
}

// Resolve resolves a field, once. Later calls return the cached outcome.
func (v *View) Resolve(name string) Resolution {
	if res, ok := v.cache[name]; ok {
		return res
	}
	if v.resolving[name] {
		return Resolution{
			Fallback: true,
			Failures: []error{v.failure(name, "resolve", fmt.Errorf("field %s depends on itself", name))},
		}
	}
	v.resolving[name] = true
	res := v.resolve(v.Field(name))
	delete(v.resolving, name)
	v.cache[name] = res
	return res
}

// resolve runs the decoding chain for one field. The schema strategy runs
// first; when it fails, the generic call path follows. A raw result
// obtained by an earlier step is reused instead of calling again.
func (v *View) resolve(f schema.Field) Resolution {
	var (
		res     Resolution
		raw     any
		haveRaw bool
	)
	fail := func(step string, err error) {
		res.Failures = append(res.Failures, v.failure(f.Name, step, err))
	}

	switch f.Decode {
	case schema.DecodeIndexed, schema.DecodeHexIndexed:
		items, err := v.expand(f)
		if err == nil && f.Decode == schema.DecodeHexIndexed {
			items, err = hexAll(items)
		}
		if err == nil {
			strategy := StrategyIndexed
			if f.Decode == schema.DecodeHexIndexed {
				strategy = StrategyHexIndexed
			}
			return v.wrap(f, items, strategy, res)
		}
		fail(f.Decode.String(), err)

	case schema.DecodeIndexName:
		names, err := v.indexNames(f)
		if err == nil {
			res.Value, res.Strategy = names, StrategyIndexName
			return res
		}
		fail(f.Decode.String(), err)

	case schema.DecodePostProcess:
		out, err := v.call(f.Name)
		if err != nil {
			fail("call", err)
			res.Value, res.Strategy, res.Fallback = nil, StrategyRaw, true
			return res
		}
		raw, haveRaw = out, true
		post, err := v.postFunc(f)
		if err == nil {
			var processed any
			if processed, err = safePost(post, out); err == nil {
				res.Value, res.Strategy = processed, StrategyPostProcess
				return res
			}
		}
		fail(f.Decode.String(), err)

	case schema.DecodeDirect:
		out, err := v.call(f.Name)
		if err == nil {
			res.Value, res.Strategy = out, StrategyDirect
			return res
		}
		fail("call", err)
		res.Value, res.Strategy, res.Fallback = nil, StrategyRaw, true
		return res

	case schema.DecodeEnumName:
		out, err := v.call(f.Name)
		if err != nil {
			fail("call", err)
			res.Value, res.Strategy, res.Fallback = nil, StrategyRaw, true
			return res
		}
		if n, ok := out.(store.Named); ok {
			res.Value, res.Strategy = n.Name(), StrategyEnumName
			return res
		}
		raw, haveRaw = out, true
		fail(f.Decode.String(), errNoName)
	}

	if !haveRaw {
		out, err := v.call(f.Name)
		if err != nil {
			fail("call", err)
			res.Value, res.Strategy, res.Fallback = nil, StrategyRaw, true
			return res
		}
		raw = out
	}
	if n, ok := raw.(store.Named); ok {
		res.Value, res.Strategy = n.Name(), StrategyName
		return res
	}
	return v.wrap(f, raw, StrategyCall, res)
}

// wrap applies the list and record steps to a value.
func (v *View) wrap(f schema.Field, value any, strategy Strategy, res Resolution) Resolution {
	if rec, ok := value.(store.Record); ok {
		res.Value, res.Strategy = NewView(rec, v.table), StrategyRecord
		return res
	}
	if items, ok := AsList(value); ok {
		n, limited, err := v.listLen(f)
		if err != nil {
			res.Failures = append(res.Failures, v.failure(f.Name, "list-length", err))
		} else if limited && n < len(items) {
			items = items[:n]
			value = truncate(value, n)
		}
		if recs, ok := recordList(items); ok {
			res.Value, res.Strategy = NewListView(recs, v.table), StrategyList
			return res
		}
	}
	res.Value, res.Strategy = value, strategy
	return res
}

// expand calls an indexed accessor once per index.
func (v *View) expand(f schema.Field) ([]any, error) {
	n, err := v.count(f)
	if err != nil {
		return nil, err
	}
	items := make([]any, n)
	for i := range items {
		out, err := v.call(f.Name, i+f.Offset)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		items[i] = out
	}
	return items, nil
}

func (v *View) count(f schema.Field) (int, error) {
	if f.CountFrom == "" {
		if f.Count < 0 {
			return 0, fmt.Errorf("negative count %d", f.Count)
		}
		return f.Count, nil
	}
	return v.intField(f.CountFrom)
}

func (v *View) listLen(f schema.Field) (n int, limited bool, err error) {
	if f.ListLenFrom != "" {
		n, err = v.intField(f.ListLenFrom)
		return n, err == nil, err
	}
	if f.ListLen > 0 {
		return f.ListLen, true, nil
	}
	return 0, false, nil
}

// intField reads another field of the record as an integer.
func (v *View) intField(name string) (int, error) {
	res := v.Resolve(name)
	if res.Fallback {
		return 0, fmt.Errorf("field %s unresolved: %w", name, res.Err())
	}
	n, ok := AsInt(res.Value)
	if !ok {
		return 0, fmt.Errorf("field %s is not a count: %v", name, res.Value)
	}
	if n < 0 {
		return 0, fmt.Errorf("field %s is negative: %d", name, n)
	}
	return n, nil
}

// indexNames maps every index from the IndexFrom accessor through the
// field accessor and takes the element names.
func (v *View) indexNames(f schema.Field) ([]string, error) {
	if f.IndexFrom == "" {
		return nil, errors.New("no index field")
	}
	res := v.Resolve(f.IndexFrom)
	if res.Fallback {
		return nil, fmt.Errorf("index field %s unresolved: %w", f.IndexFrom, res.Err())
	}
	indexes, ok := AsList(res.Value)
	if !ok {
		return nil, fmt.Errorf("index field %s is not a list", f.IndexFrom)
	}
	names := make([]string, len(indexes))
	for i, idx := range indexes {
		n, ok := AsInt(idx)
		if !ok {
			return nil, fmt.Errorf("index %v is not an integer", idx)
		}
		out, err := v.call(f.Name, n)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", n, err)
		}
		named, ok := out.(store.Named)
		if !ok {
			return nil, fmt.Errorf("index %d: %w", n, errNoName)
		}
		names[i] = named.Name()
	}
	return names, nil
}

func (v *View) postFunc(f schema.Field) (schema.PostFunc, error) {
	if f.Post != nil {
		return f.Post, nil
	}
	if f.PostName != "" && v.table != nil {
		if fn, ok := v.table.PostProcessor(f.PostName); ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("no post-processor %q", f.PostName)
}

// call invokes an accessor, converting a panic into an error.
func (v *View) call(name string, args ...int) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("accessor %s panicked: %v", name, p)
		}
	}()
	return v.rec.Call(name, args...)
}

func safePost(fn schema.PostFunc, raw any) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("post-processor panicked: %v", p)
		}
	}()
	return fn(raw)
}

func (v *View) failure(field, step string, err error) error {
	return &dserrors.FieldResolutionError{
		Type:  v.rec.Type().String(),
		Field: field,
		Step:  step,
		Err:   err,
	}
}

func hexAll(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		s, err := hexString(item)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
