package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Loader supplies the schemas of one record-type module.
// Returning no schemas and no error means the loader does not know the module.
type Loader interface {
	Load(module string) ([]*TypeSchema, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(module string) ([]*TypeSchema, error)

// Load implements Loader.
func (f LoaderFunc) Load(module string) ([]*TypeSchema, error) {
	return f(module)
}

// module is the loaded state of one record-type module.
type module struct {
	types map[string]*TypeSchema
	err   error
}

// Table is the process-wide schema table. Modules are loaded on first
// lookup, at most once each, and never change afterwards. Table is safe
// for concurrent use.
type Table struct {
	mu      sync.RWMutex
	modules map[string]*module
	loaders []Loader
	post    map[string]PostFunc
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithLoader appends a loader. Loaders are consulted in order; when two
// loaders describe the same type the first one wins.
func WithLoader(l Loader) TableOption {
	return func(t *Table) {
		if l != nil {
			t.loaders = append(t.loaders, l)
		}
	}
}

// WithoutBuiltins removes the built-in loader.
func WithoutBuiltins() TableOption {
	return func(t *Table) {
		kept := t.loaders[:0]
		for _, l := range t.loaders {
			if _, ok := l.(builtinLoader); !ok {
				kept = append(kept, l)
			}
		}
		t.loaders = kept
	}
}

// WithPostProcessor registers a named post-processing function that schema
// documents can refer to.
func WithPostProcessor(name string, fn PostFunc) TableOption {
	return func(t *Table) {
		t.post[name] = fn
	}
}

// NewTable creates a schema table backed by the built-in schemas plus any
// configured loaders.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		modules: make(map[string]*module),
		loaders: []Loader{builtinLoader{}},
		post:    defaultPostProcessors(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lookup returns the schema for a record type.
func (t *Table) Lookup(typ store.TypeID) (*TypeSchema, bool) {
	m := t.load(typ.Module)
	s, ok := m.types[typ.Name]
	return s, ok
}

// Err returns the error, if any, recorded while loading a module.
func (t *Table) Err(moduleName string) error {
	return t.load(moduleName).err
}

// PostProcessor returns a registered post-processing function.
func (t *Table) PostProcessor(name string) (PostFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.post[name]
	return fn, ok
}

// Modules returns the names of the modules loaded so far, sorted.
func (t *Table) Modules() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.modules))
	for name := range t.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// load returns a module, loading it under the write lock on first use.
func (t *Table) load(name string) *module {
	t.mu.RLock()
	m, ok := t.modules[name]
	t.mu.RUnlock()
	if ok {
		return m
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.modules[name]; ok {
		return m
	}

	m = &module{types: make(map[string]*TypeSchema)}
	for _, l := range t.loaders {
		schemas, err := l.Load(name)
		if err != nil {
			// A failing loader leaves what others provided usable.
			m.err = fmt.Errorf("load schema module %s: %w", name, err)
			continue
		}
		for _, s := range schemas {
			if _, dup := m.types[s.Type.Name]; !dup {
				m.types[s.Type.Name] = s
			}
		}
	}
	t.modules[name] = m
	return m
}
