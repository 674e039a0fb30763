package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// ErrClosed indicates the store has been closed.
var ErrClosed = errors.New("memstore closed")

// Container is an in-memory keyed record collection.
type Container struct {
	keys []store.Key
	recs map[store.Key]*Record
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{recs: make(map[store.Key]*Record)}
}

// Put adds a record for a source under the empty key.
func (c *Container) Put(source string, rec *Record) *Container {
	return c.PutKey(source, "", rec)
}

// PutKey adds a record for a source under an explicit key.
// A second record with the same address replaces the first.
func (c *Container) PutKey(source, key string, rec *Record) *Container {
	k := store.Key{Type: rec.Type(), Source: source, Key: key}
	if _, ok := c.recs[k]; !ok {
		c.keys = append(c.keys, k)
	}
	c.recs[k] = rec
	return c
}

// Keys implements store.Container.
func (c *Container) Keys() []store.Key {
	out := make([]store.Key, len(c.keys))
	copy(out, c.keys)
	return out
}

// Get implements store.Container.
func (c *Container) Get(k store.Key) (store.Record, error) {
	rec, ok := c.recs[k]
	if !ok {
		return nil, fmt.Errorf("%s: %w", k, store.ErrNotFound)
	}
	return rec, nil
}

// Record returns the concrete record at a key, or nil.
func (c *Container) Record(k store.Key) *Record {
	return c.recs[k]
}

// Calls returns the accessor call count across every record.
func (c *Container) Calls() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, rec := range c.recs {
		total += rec.TotalCalls()
	}
	return total
}

// Event is an in-memory event.
type Event struct {
	*Container
	time store.TimeTuple
}

// NewEvent creates an empty event with a time identity.
func NewEvent(t store.TimeTuple) *Event {
	return &Event{Container: NewContainer(), time: t}
}

// Time implements store.Event.
func (e *Event) Time() store.TimeTuple { return e.time }

// step is one step's configuration and events.
type step struct {
	config *Container
	events []*Event
}

// Store is an in-memory store. It serves all three access modes from the
// same data: idx sees one run over every event, smd sees the steps, and
// live sees every event in order.
type Store struct {
	mu         sync.Mutex
	run        int
	config     *Container
	steps      []*step
	calibrated map[string]func(store.Event) (*Record, error)
	closed     bool
}

// New creates a store with a configuration snapshot.
func New(config *Container) *Store {
	if config == nil {
		config = NewContainer()
	}
	return &Store{
		config:     config,
		calibrated: make(map[string]func(store.Event) (*Record, error)),
	}
}

// SetRun sets the run number.
func (s *Store) SetRun(n int) *Store {
	s.run = n
	return s
}

// SetConfig replaces the configuration snapshot. Live sessions observe the
// change at their next event.
func (s *Store) SetConfig(c *Container) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = c
}

// AddStep appends a step. A nil config means the step uses the store config.
func (s *Store) AddStep(config *Container, events ...*Event) *Store {
	s.steps = append(s.steps, &step{config: config, events: events})
	return s
}

// AddEvents appends events to the last step, creating one if needed.
func (s *Store) AddEvents(events ...*Event) *Store {
	if len(s.steps) == 0 {
		s.AddStep(nil)
	}
	last := s.steps[len(s.steps)-1]
	last.events = append(last.events, events...)
	return s
}

// SetCalibrated registers a calibrated-view producer for a source.
func (s *Store) SetCalibrated(source string, fn func(store.Event) (*Record, error)) *Store {
	s.calibrated[source] = fn
	return s
}

// Calls returns the accessor call count across the whole store.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.config.Calls()
	for _, st := range s.steps {
		total += st.config.Calls()
		for _, ev := range st.events {
			total += ev.Calls()
		}
	}
	return total
}

// Config implements store.Store.
func (s *Store) Config() store.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Runs implements store.Store.
func (s *Store) Runs(_ context.Context) (store.RunIterator, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	r := &run{store: s, index: make(map[store.TimeTuple]*Event)}
	for _, st := range s.steps {
		for _, ev := range st.events {
			r.times = append(r.times, ev.time)
			r.index[ev.time] = ev
		}
	}
	return &runIterator{runs: []*run{r}}, nil
}

// Steps implements store.Store.
func (s *Store) Steps(_ context.Context) (store.StepIterator, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return &stepIterator{store: s}, nil
}

// Events implements store.Store.
func (s *Store) Events(_ context.Context) (store.EventIterator, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var all []*Event
	for _, st := range s.steps {
		all = append(all, st.events...)
	}
	return &eventIterator{events: all}, nil
}

// Calibrated implements store.Calibrator.
func (s *Store) Calibrated(ev store.Event, source string) (store.Record, error) {
	fn, ok := s.calibrated[source]
	if !ok {
		return nil, fmt.Errorf("calibrated %s: %w", source, store.ErrNotFound)
	}
	rec, err := fn(ev)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

type run struct {
	store *Store
	times []store.TimeTuple
	index map[store.TimeTuple]*Event
}

func (r *run) Number() int { return r.store.run }

func (r *run) Times(_ context.Context) ([]store.TimeTuple, error) {
	out := make([]store.TimeTuple, len(r.times))
	copy(out, r.times)
	return out, nil
}

func (r *run) Event(_ context.Context, t store.TimeTuple) (store.Event, error) {
	ev, ok := r.index[t]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", t, store.ErrNotFound)
	}
	return ev, nil
}

func (r *run) Config() store.Container { return r.store.Config() }

type runIterator struct {
	runs []*run
	pos  int
}

func (it *runIterator) Next(ctx context.Context) (store.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.runs) {
		return nil, store.ErrEnd
	}
	r := it.runs[it.pos]
	it.pos++
	return r, nil
}

type stepHandle struct {
	store *Store
	step  *step
}

func (h *stepHandle) Events() store.EventIterator {
	return &eventIterator{events: h.step.events}
}

func (h *stepHandle) Config() store.Container {
	if h.step.config != nil {
		return h.step.config
	}
	return h.store.Config()
}

type stepIterator struct {
	store *Store
	pos   int
}

func (it *stepIterator) Next(ctx context.Context) (store.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.store.steps) {
		return nil, store.ErrEnd
	}
	st := it.store.steps[it.pos]
	it.pos++
	return &stepHandle{store: it.store, step: st}, nil
}

type eventIterator struct {
	events []*Event
	pos    int
}

func (it *eventIterator) Next(ctx context.Context) (store.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.events) {
		return nil, store.ErrEnd
	}
	ev := it.events[it.pos]
	it.pos++
	return ev, nil
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Calibrator = (*Store)(nil)
	_ store.Event      = (*Event)(nil)
)
