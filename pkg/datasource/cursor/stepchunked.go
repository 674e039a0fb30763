package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// StepChunked walks the steps of a run and the events inside each step.
//
// Seeks are served by an indexed companion over the same run and do not
// touch step iteration. The cursor remembers the step position it held
// before the first of a chain of seeks; the next plain Next resumes from
// there, so seeking never changes which event Next returns.
type StepChunked struct {
	base
	steps     store.StepIterator
	companion *Indexed

	step    store.Step
	stepIdx int
	inner   store.EventIterator
	// innerPos is the index within the step of the last event Next returned.
	innerPos int
	// pending is a step pulled from the store whose hook has not succeeded
	// yet. It is entered before any further step is pulled.
	pending store.Step

	// resume holds the step position from before a seek.
	resume *Position
}

// NewStepChunked creates a cursor over steps. companion serves seeks and
// may be nil, in which case Seek is unsupported.
func NewStepChunked(steps store.StepIterator, companion *Indexed, opts ...Option) *StepChunked {
	return &StepChunked{
		base:      newBase(store.ModeSmallData.String(), opts),
		steps:     steps,
		companion: companion,
		stepIdx:   -1,
		innerPos:  -1,
	}
}

// Step returns the current step, or nil before the first one.
func (c *StepChunked) Step() store.Step { return c.step }

// StepIndex returns the index of the current step, or -1.
func (c *StepChunked) StepIndex() int { return c.stepIdx }

// Companion returns the indexed cursor serving seeks, or nil.
func (c *StepChunked) Companion() *Indexed { return c.companion }

// Resume returns the step position the next Next continues from, if the
// cursor is detached by a seek.
func (c *StepChunked) Resume() (Position, bool) {
	if c.resume == nil {
		return Position{}, false
	}
	return *c.resume, true
}

// Next implements Cursor. When a step runs out of events the next step is
// entered, the step hook fires and the fetch is retried. Empty steps are
// passed over.
func (c *StepChunked) Next(ctx context.Context) (ev store.Event, err error) {
	start := time.Now()
	defer func() { c.recordAdvance(ctx, start, err) }()

	if c.state == Exhausted {
		return nil, c.exhaust()
	}
	if c.resume != nil {
		// Step iteration was never moved by the seek; restoring the
		// coordinates is enough to continue after them.
		c.pos = *c.resume
		c.resume = nil
	}

	for {
		if c.inner == nil {
			more, err := c.nextStep(ctx)
			if err != nil {
				return nil, err
			}
			if !more {
				return nil, c.exhaust()
			}
		}

		ev, err = c.inner.Next(ctx)
		if errors.Is(err, store.ErrEnd) {
			c.inner = nil
			continue
		}
		if err != nil {
			return nil, c.storeErr("events", err)
		}
		c.innerPos++
		c.advanced++
		c.land(ev, Position{Step: c.stepIdx, Event: c.innerPos})
		return ev, nil
	}
}

// Seek implements Cursor. The landing position has Step DetachedStep and
// the event's index in the run. The step hook does not fire: the target
// event is read under the configuration of the step being walked.
func (c *StepChunked) Seek(ctx context.Context, target Target) (store.Event, error) {
	return c.seekSpan(ctx, target, func(ctx context.Context) (store.Event, error) {
		if c.companion == nil {
			return nil, c.unsupported(target, "run has no index")
		}
		ev, i, err := c.companion.Locate(ctx, target)
		if err != nil {
			return nil, err
		}
		if c.resume == nil && c.state == Positioned && c.pos.Step != DetachedStep {
			saved := c.pos
			c.resume = &saved
		}
		c.land(ev, Position{Step: DetachedStep, Event: i})
		return ev, nil
	})
}

// nextStep enters the next step. A step whose hook fails stays pending and
// the hook is retried on the following call.
func (c *StepChunked) nextStep(ctx context.Context) (bool, error) {
	if c.pending == nil {
		step, err := c.steps.Next(ctx)
		if errors.Is(err, store.ErrEnd) {
			return false, nil
		}
		if err != nil {
			return false, c.storeErr("steps", err)
		}
		c.pending = step
	}
	step := c.pending
	if c.opts.onStep != nil {
		if err := c.opts.onStep(ctx, step, c.stepIdx+1); err != nil {
			return false, err
		}
	}
	c.pending = nil
	c.step = step
	c.stepIdx++
	c.inner = step.Events()
	c.innerPos = -1
	c.opts.logger.Debug("step entered", "step", c.stepIdx)
	return true, nil
}

var _ Cursor = (*StepChunked)(nil)
