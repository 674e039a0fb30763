package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Opener serves registered stores by access mode. Failures can be queued
// per mode to exercise retry and fallback paths.
type Opener struct {
	mu       sync.Mutex
	stores   map[store.Mode]*Store
	failures map[store.Mode][]error
	opens    map[store.Mode]int
}

// NewOpener creates an opener with no stores.
func NewOpener() *Opener {
	return &Opener{
		stores:   make(map[store.Mode]*Store),
		failures: make(map[store.Mode][]error),
		opens:    make(map[store.Mode]int),
	}
}

// Register serves st for each of the given modes.
func (o *Opener) Register(st *Store, modes ...store.Mode) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range modes {
		o.stores[m] = st
	}
	return o
}

// FailNext queues errors returned by the next opens in a mode, in order.
func (o *Opener) FailNext(mode store.Mode, errs ...error) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[mode] = append(o.failures[mode], errs...)
	return o
}

// Opens returns how many times a mode has been opened, failures included.
func (o *Opener) Opens(mode store.Mode) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[mode]
}

// Open implements store.Opener.
func (o *Opener) Open(ctx context.Context, spec store.Spec) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens[spec.Mode]++
	if queued := o.failures[spec.Mode]; len(queued) > 0 {
		o.failures[spec.Mode] = queued[1:]
		return nil, queued[0]
	}

	st, ok := o.stores[spec.Mode]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", spec, store.ErrNotFound)
	}
	return st, nil
}

var _ store.Opener = (*Opener)(nil)
