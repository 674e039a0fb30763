package record

import (
	"fmt"
	"sort"

	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// SourceView joins every record type of one source into one attribute
// namespace. Types are visited in sorted type-key order and the first type
// defining an attribute owns it. Views are built on first use and kept for
// the life of the SourceView. It is not safe for concurrent use.
type SourceView struct {
	source    string
	container store.Container
	table     *schema.Table
	keys      []store.Key

	views    map[string]*View
	failures []error

	owners map[string]store.Key
	attrs  []string
}

// NewSourceView creates the view of one source. When keys is nil the
// container is listed and filtered by source.
func NewSourceView(c store.Container, source string, keys []store.Key, table *schema.Table) *SourceView {
	if keys == nil {
		for _, k := range c.Keys() {
			if k.Source == source {
				keys = append(keys, k)
			}
		}
	}
	sorted := make([]store.Key, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k.Source != source || seen[k.TypeKey()] {
			continue
		}
		seen[k.TypeKey()] = true
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TypeKey() < sorted[j].TypeKey() })

	return &SourceView{
		source:    source,
		container: c,
		table:     table,
		keys:      sorted,
		views:     make(map[string]*View, len(sorted)),
	}
}

// Source returns the source string.
func (s *SourceView) Source() string { return s.source }

// Keys returns the source's record keys in type-key order.
func (s *SourceView) Keys() []store.Key {
	out := make([]store.Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// TypeKeys returns the type keys in iteration order.
func (s *SourceView) TypeKeys() []string {
	out := make([]string, len(s.keys))
	for i, k := range s.keys {
		out[i] = k.TypeKey()
	}
	return out
}

// View returns the view of one record, fetching it on first use.
func (s *SourceView) View(k store.Key) (*View, error) {
	if v, ok := s.views[k.TypeKey()]; ok {
		return v, nil
	}
	rec, err := s.container.Get(k)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	v := NewView(rec, s.table)
	s.views[k.TypeKey()] = v
	return v, nil
}

// TypeView returns the first view whose type key or type string matches name.
func (s *SourceView) TypeView(name string) (*View, bool) {
	for _, k := range s.keys {
		if k.TypeKey() == name || k.Type.String() == name || k.Type.Name == name {
			v, err := s.View(k)
			if err != nil {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}

// ModuleViews returns the views of every record whose type belongs to module.
func (s *SourceView) ModuleViews(module string) []*View {
	var out []*View
	for _, k := range s.keys {
		if k.Type.Module != module {
			continue
		}
		if v, err := s.View(k); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// index builds the attribute owner table on first use. Records the
// container fails to return are skipped and kept in Failures.
func (s *SourceView) index() {
	if s.owners != nil {
		return
	}
	s.owners = make(map[string]store.Key)
	for _, k := range s.keys {
		v, err := s.View(k)
		if err != nil {
			s.failures = append(s.failures, err)
			continue
		}
		for _, name := range v.Fields() {
			if _, taken := s.owners[name]; taken {
				continue
			}
			s.owners[name] = k
			s.attrs = append(s.attrs, name)
		}
	}
	sort.Strings(s.attrs)
}

// Attrs returns the union of attribute names across types, sorted.
func (s *SourceView) Attrs() []string {
	s.index()
	out := make([]string, len(s.attrs))
	copy(out, s.attrs)
	return out
}

// Has reports whether any type defines attr.
func (s *SourceView) Has(attr string) bool {
	s.index()
	_, ok := s.owners[attr]
	return ok
}

// Owner returns the key of the record that owns attr.
func (s *SourceView) Owner(attr string) (store.Key, bool) {
	s.index()
	k, ok := s.owners[attr]
	return k, ok
}

// Resolve resolves attr on its owning record.
func (s *SourceView) Resolve(attr string) (Resolution, bool) {
	k, ok := s.Owner(attr)
	if !ok {
		return Resolution{}, false
	}
	v, err := s.View(k)
	if err != nil {
		return Resolution{}, false
	}
	return v.Resolve(attr), true
}

// Value returns the value of attr.
func (s *SourceView) Value(attr string) (any, bool) {
	res, ok := s.Resolve(attr)
	if !ok {
		return nil, false
	}
	return res.Value, true
}

// Attr returns attr with its unit and doc.
func (s *SourceView) Attr(attr string) (Attr, bool) {
	k, ok := s.Owner(attr)
	if !ok {
		return Attr{}, false
	}
	v, err := s.View(k)
	if err != nil {
		return Attr{}, false
	}
	return v.Attr(attr), true
}

// Flatten resolves every attribute, expanding nested views into
// "parent_child" names.
func (s *SourceView) Flatten() map[string]any {
	out := make(map[string]any)
	for _, attr := range s.Attrs() {
		if v, ok := s.Value(attr); ok {
			flattenInto(out, attr, v)
		}
	}
	return out
}

// Info renders the rows of every type in iteration order, each type's
// rows sorted by field. Attributes shadowed by an earlier type are left out.
func (s *SourceView) Info() []string {
	s.index()
	var rows []string
	for _, k := range s.keys {
		v, ok := s.views[k.TypeKey()]
		if !ok {
			continue
		}
		names := v.Fields()
		sort.Strings(names)
		for _, name := range names {
			if s.owners[name] != k {
				continue
			}
			rows = append(rows, v.infoRows(name, "")...)
		}
	}
	return rows
}

// Failures returns the errors met while fetching records.
func (s *SourceView) Failures() []error {
	s.index()
	return s.failures
}
