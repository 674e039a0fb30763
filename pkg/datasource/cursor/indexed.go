package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Indexed walks the time index of each run in turn. Seeks address the
// current run.
type Indexed struct {
	base
	runs store.RunIterator

	run    store.Run
	runIdx int
	times  []store.TimeTuple
	index  map[store.TimeTuple]int
	// next is the index of the event the next plain Next fetches.
	next int
	// pending is a run pulled from the store whose hook has not succeeded
	// yet. It is loaded before any further run is pulled.
	pending store.Run
}

// NewIndexed creates a cursor over runs. No run is read until the first
// Next or Seek.
func NewIndexed(runs store.RunIterator, opts ...Option) *Indexed {
	return &Indexed{
		base:   newBase(store.ModeIndexed.String(), opts),
		runs:   runs,
		runIdx: -1,
	}
}

// Run returns the current run, or nil before the first one is loaded.
func (c *Indexed) Run() store.Run { return c.run }

// Times returns the time index of the current run, loading the first run
// if needed.
func (c *Indexed) Times(ctx context.Context) ([]store.TimeTuple, error) {
	if err := c.ensureRun(ctx); err != nil {
		return nil, err
	}
	return c.times, nil
}

// Len returns the event count of the current run.
func (c *Indexed) Len(ctx context.Context) (int, error) {
	times, err := c.Times(ctx)
	return len(times), err
}

// Next implements Cursor. When a run's index is used up the next run is
// loaded and the run hook fires.
func (c *Indexed) Next(ctx context.Context) (ev store.Event, err error) {
	start := time.Now()
	defer func() { c.recordAdvance(ctx, start, err) }()

	if c.state == Exhausted {
		return nil, c.exhaust()
	}
	for c.run == nil || c.next >= len(c.times) {
		more, err := c.nextRun(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			return nil, c.exhaust()
		}
	}

	i := c.next
	ev, err = c.run.Event(ctx, c.times[i])
	if err != nil {
		return nil, c.storeErr("event", err)
	}
	c.next = i + 1
	c.advanced++
	c.land(ev, Position{Run: c.runIdx, Event: i})
	return ev, nil
}

// Seek implements Cursor. An index outside the run or a time missing from
// its index returns an *errors.UnsupportedOperationError.
func (c *Indexed) Seek(ctx context.Context, target Target) (store.Event, error) {
	return c.seekSpan(ctx, target, func(ctx context.Context) (store.Event, error) {
		ev, i, err := c.Locate(ctx, target)
		if err != nil {
			return nil, err
		}
		c.next = i + 1
		c.land(ev, Position{Run: c.runIdx, Event: i})
		return ev, nil
	})
}

// Locate fetches the event at target in the current run without moving the
// cursor. It returns the event's index.
func (c *Indexed) Locate(ctx context.Context, target Target) (store.Event, int, error) {
	if err := c.ensureRun(ctx); err != nil {
		return nil, 0, err
	}
	i, err := c.indexOf(target)
	if err != nil {
		return nil, 0, err
	}
	ev, err := c.run.Event(ctx, c.times[i])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, c.unsupported(target, "event not found")
		}
		return nil, 0, c.storeErr("event", err)
	}
	return ev, i, nil
}

// IndexOf returns the index of a time in the current run.
func (c *Indexed) IndexOf(ctx context.Context, t store.TimeTuple) (int, bool) {
	if c.ensureRun(ctx) != nil {
		return 0, false
	}
	i, ok := c.index[t]
	return i, ok
}

func (c *Indexed) indexOf(target Target) (int, error) {
	if t, ok := target.Time(); ok {
		i, found := c.index[t]
		if !found {
			return 0, c.unsupported(target, "time not in index")
		}
		return i, nil
	}
	i, _ := target.Index()
	if i < 0 || i >= len(c.times) {
		return 0, c.unsupported(target, "index out of range")
	}
	return i, nil
}

func (c *Indexed) ensureRun(ctx context.Context) error {
	if c.run != nil {
		return nil
	}
	more, err := c.nextRun(ctx)
	if err != nil {
		return err
	}
	if !more {
		return c.unsupported(AtIndex(0), "no runs")
	}
	return nil
}

// nextRun loads the next run and its index. It reports false at the end
// of the run sequence. A run whose index or hook fails stays pending and is
// retried on the following call.
func (c *Indexed) nextRun(ctx context.Context) (bool, error) {
	if c.pending == nil {
		run, err := c.runs.Next(ctx)
		if errors.Is(err, store.ErrEnd) {
			return false, nil
		}
		if err != nil {
			return false, c.storeErr("runs", err)
		}
		c.pending = run
	}
	run := c.pending
	times, err := run.Times(ctx)
	if err != nil {
		return false, c.storeErr("times", err)
	}
	if c.opts.onRun != nil {
		if err := c.opts.onRun(ctx, run); err != nil {
			return false, err
		}
	}

	c.pending = nil
	c.run = run
	c.runIdx++
	c.times = times
	c.index = make(map[store.TimeTuple]int, len(times))
	for i, t := range times {
		c.index[t] = i
	}
	c.next = 0
	c.opts.logger.Debug("run loaded",
		"run", run.Number(),
		"events", len(times),
	)
	return true, nil
}

var _ Cursor = (*Indexed)(nil)
