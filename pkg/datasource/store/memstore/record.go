// Package memstore is an in-memory store implementation.
//
// Records hold plain Go values keyed by accessor name. Every accessor call is
// counted, so tests can assert exactly how often the browsing layers reach
// into the store. Stores can be assembled in code or loaded from YAML
// fixtures (see Load).
package memstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// ErrNoAccessor indicates a record has no accessor with the requested name.
var ErrNoAccessor = errors.New("no such accessor")

// Func is an accessor computed on each call.
type Func func() (any, error)

// IndexedFunc is an accessor that takes one index argument.
type IndexedFunc func(i int) (any, error)

// Indexed is an accessor that returns one element per index argument.
type Indexed []any

// Enum is an enum-like value that exposes a symbolic name.
type Enum struct {
	Label string
	Value int
}

// Name implements store.Named.
func (e Enum) Name() string { return e.Label }

// String returns the label.
func (e Enum) String() string { return e.Label }

// Failing returns an accessor that always fails with err.
func Failing(err error) Func {
	return func() (any, error) { return nil, err }
}

// Record is an in-memory typed record.
type Record struct {
	typ    store.TypeID
	order  []string
	fields map[string]any

	mu    sync.Mutex
	calls map[string]int
}

// NewRecord creates an empty record of the given "Module.Name" type.
func NewRecord(typeName string) *Record {
	return &Record{
		typ:    store.ParseTypeID(typeName),
		fields: make(map[string]any),
		calls:  make(map[string]int),
	}
}

// Set defines an accessor. Values may be plain Go values, *Record,
// []*Record, Enum, Func, IndexedFunc or Indexed.
func (r *Record) Set(name string, v any) *Record {
	if _, ok := r.fields[name]; !ok {
		r.order = append(r.order, name)
	}
	r.fields[name] = v
	return r
}

// Type implements store.Record.
func (r *Record) Type() store.TypeID { return r.typ }

// Accessors implements store.Record.
func (r *Record) Accessors() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Call implements store.Record.
func (r *Record) Call(name string, args ...int) (any, error) {
	r.mu.Lock()
	r.calls[name]++
	r.mu.Unlock()

	v, ok := r.fields[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", r.typ, name, ErrNoAccessor)
	}

	switch f := v.(type) {
	case Func:
		if len(args) > 0 {
			return nil, fmt.Errorf("%s.%s takes no index", r.typ, name)
		}
		out, err := f()
		return convert(out), err
	case IndexedFunc:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s.%s requires one index", r.typ, name)
		}
		out, err := f(args[0])
		return convert(out), err
	case Indexed:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s.%s requires one index", r.typ, name)
		}
		i := args[0]
		if i < 0 || i >= len(f) {
			return nil, fmt.Errorf("%s.%s index %d out of range [0,%d)", r.typ, name, i, len(f))
		}
		return convert(f[i]), nil
	}

	if len(args) > 0 {
		return nil, fmt.Errorf("%s.%s takes no index", r.typ, name)
	}
	return convert(v), nil
}

// Calls returns how many times an accessor has been invoked.
func (r *Record) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

// TotalCalls returns the number of accessor calls on this record and every
// record nested inside it.
func (r *Record) TotalCalls() int {
	r.mu.Lock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	r.mu.Unlock()

	for _, v := range r.fields {
		switch nested := v.(type) {
		case *Record:
			total += nested.TotalCalls()
		case []*Record:
			for _, child := range nested {
				total += child.TotalCalls()
			}
		}
	}
	return total
}

// convert hands out nested records through the store.Record interface.
func convert(v any) any {
	switch x := v.(type) {
	case *Record:
		return store.Record(x)
	case []*Record:
		out := make([]store.Record, len(x))
		for i, rec := range x {
			out[i] = rec
		}
		return out
	}
	return v
}

var _ store.Record = (*Record)(nil)
