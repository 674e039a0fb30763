package record

import (
	"sort"

	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// KeySet is the key listing of one container grouped by source and by
// type module.
type KeySet struct {
	all      []store.Key
	bySource map[string][]store.Key
	byModule map[string][]store.Key
	sources  []string
}

// GroupKeys groups a key listing. Keys keep their listing order within a
// group.
func GroupKeys(keys []store.Key) *KeySet {
	ks := &KeySet{
		all:      keys,
		bySource: make(map[string][]store.Key),
		byModule: make(map[string][]store.Key),
	}
	for _, k := range keys {
		if _, ok := ks.bySource[k.Source]; !ok {
			ks.sources = append(ks.sources, k.Source)
		}
		ks.bySource[k.Source] = append(ks.bySource[k.Source], k)
		ks.byModule[k.Type.Module] = append(ks.byModule[k.Type.Module], k)
	}
	sort.Strings(ks.sources)
	return ks
}

// Len returns the number of keys.
func (ks *KeySet) Len() int { return len(ks.all) }

// All returns every key in listing order.
func (ks *KeySet) All() []store.Key { return ks.all }

// Sources returns the distinct sources, sorted.
func (ks *KeySet) Sources() []string { return ks.sources }

// Has reports whether any record belongs to source.
func (ks *KeySet) Has(source string) bool {
	_, ok := ks.bySource[source]
	return ok
}

// Source returns the keys of one source.
func (ks *KeySet) Source(source string) []store.Key { return ks.bySource[source] }

// Module returns the keys whose type belongs to module.
func (ks *KeySet) Module(module string) []store.Key { return ks.byModule[module] }

// TypeNames returns the distinct type names present in module, sorted.
func (ks *KeySet) TypeNames(module string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range ks.byModule[module] {
		if !seen[k.Type.Name] {
			seen[k.Type.Name] = true
			out = append(out, k.Type.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot holds every record of one container, grouped by source, with
// one SourceView per source built on first use.
type Snapshot struct {
	container store.Container
	table     *schema.Table
	keys      *KeySet
	sources   map[string]*SourceView
}

// NewSnapshot lists the container once and groups its keys.
func NewSnapshot(c store.Container, table *schema.Table) *Snapshot {
	return &Snapshot{
		container: c,
		table:     table,
		keys:      GroupKeys(c.Keys()),
		sources:   make(map[string]*SourceView),
	}
}

// Container returns the underlying container.
func (s *Snapshot) Container() store.Container { return s.container }

// Table returns the schema table.
func (s *Snapshot) Table() *schema.Table { return s.table }

// Keys returns the grouped key listing.
func (s *Snapshot) Keys() *KeySet { return s.keys }

// Source returns the view of one source, or false if the container has no
// record for it.
func (s *Snapshot) Source(source string) (*SourceView, bool) {
	if sv, ok := s.sources[source]; ok {
		return sv, true
	}
	keys := s.keys.Source(source)
	if len(keys) == 0 {
		return nil, false
	}
	sv := NewSourceView(s.container, source, keys, s.table)
	s.sources[source] = sv
	return sv, true
}

// View returns the view of one record through its source.
func (s *Snapshot) View(k store.Key) (*View, error) {
	sv, ok := s.Source(k.Source)
	if !ok {
		return nil, store.ErrNotFound
	}
	return sv.View(k)
}
