// Package store defines the interface to the opaque event and configuration
// store that the browsing layers read from.
//
// A store hands out typed records keyed by (type, source, key). Records can
// only be read through accessor calls; nothing about their layout is known
// until a field schema or the record's own accessor listing describes it.
// Iteration comes in three shapes: runs with a random-access time index,
// steps that each carry their own event stream, and a live stream.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEnd is returned by every iterator in this package when it has no more items.
var ErrEnd = errors.New("end of sequence")

// ErrNotFound indicates a record or event is not present in a container.
var ErrNotFound = errors.New("record not found")

// TypeID identifies a record type. Module and Name together are the schema
// lookup key, e.g. {"EvrData", "ConfigV7"}.
type TypeID struct {
	Module string
	Name   string
}

// String returns "Module.Name".
func (t TypeID) String() string {
	if t.Module == "" {
		return t.Name
	}
	return t.Module + "." + t.Name
}

// ParseTypeID splits "Module.Name" into a TypeID.
func ParseTypeID(s string) TypeID {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return TypeID{Module: s[:i], Name: s[i+1:]}
		}
	}
	return TypeID{Name: s}
}

// Key addresses one typed record inside a container.
type Key struct {
	Type   TypeID
	Source string
	Key    string
}

// TypeKey identifies the record type and key within one source.
// SourceViews order their types by this string.
func (k Key) TypeKey() string {
	if k.Key == "" {
		return k.Type.String()
	}
	return k.Type.String() + "/" + k.Key
}

// String returns a readable representation of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s[%s]", k.TypeKey(), k.Source)
}

// Record is an opaque typed record.
type Record interface {
	// Type returns the record's declared type.
	Type() TypeID

	// Accessors returns the public accessor names the record exposes.
	Accessors() []string

	// Call invokes an accessor. Indexed accessors take one integer argument.
	Call(accessor string, args ...int) (any, error)
}

// Named is implemented by enum-like values that carry a symbolic name.
type Named interface {
	Name() string
}

// Container is a keyed collection of typed records: a configuration
// snapshot or a single event.
type Container interface {
	// Keys lists every record present.
	Keys() []Key

	// Get fetches one record. Returns ErrNotFound if the key is absent.
	Get(k Key) (Record, error)
}

// TimeTuple is the identity of an event across all access modes.
type TimeTuple struct {
	Seconds     int64
	Nanoseconds int64
	Fiducial    int64
}

// Float64 returns the time as floating-point seconds.
func (t TimeTuple) Float64() float64 {
	return float64(t.Seconds) + float64(t.Nanoseconds)*1e-9
}

// Time returns the event time in UTC.
func (t TimeTuple) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanoseconds).UTC()
}

// String returns "sec.nsec/fiducial".
func (t TimeTuple) String() string {
	return fmt.Sprintf("%d.%09d/%d", t.Seconds, t.Nanoseconds, t.Fiducial)
}

// Event is one event container with its time identity.
type Event interface {
	Container
	Time() TimeTuple
}

// EventIterator pulls events one at a time. Next returns ErrEnd when done.
type EventIterator interface {
	Next(ctx context.Context) (Event, error)
}

// Run is one run with a random-access time index.
type Run interface {
	// Number returns the run number.
	Number() int

	// Times returns the ordered time index for every event in the run.
	Times(ctx context.Context) ([]TimeTuple, error)

	// Event fetches the event with the given time.
	// Returns ErrNotFound if the time is not in the run.
	Event(ctx context.Context, t TimeTuple) (Event, error)

	// Config returns the configuration snapshot for the run.
	Config() Container
}

// RunIterator pulls runs in order. Next returns ErrEnd when done.
type RunIterator interface {
	Next(ctx context.Context) (Run, error)
}

// Step is one calibration step of a step-chunked run.
type Step interface {
	// Events returns an iterator scoped to this step.
	Events() EventIterator

	// Config returns the configuration snapshot in effect for this step.
	Config() Container
}

// StepIterator pulls steps in order. Next returns ErrEnd when done.
type StepIterator interface {
	Next(ctx context.Context) (Step, error)
}

// Store is one opened data source.
type Store interface {
	// Config returns the current configuration snapshot.
	// In live mode the snapshot may change between events.
	Config() Container

	// Runs iterates runs for indexed access.
	Runs(ctx context.Context) (RunIterator, error)

	// Steps iterates steps for step-chunked access.
	Steps(ctx context.Context) (StepIterator, error)

	// Events returns the live event stream.
	Events(ctx context.Context) (EventIterator, error)

	// Close releases the store.
	Close() error
}

// Calibrator produces processed views of a source for one event.
// It is optional and typically much more expensive than raw access.
type Calibrator interface {
	Calibrated(ev Event, source string) (Record, error)
}

// Opener opens a store for a spec.
type Opener interface {
	Open(ctx context.Context, spec Spec) (Store, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, spec Spec) (Store, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, spec Spec) (Store, error) {
	return f(ctx, spec)
}
