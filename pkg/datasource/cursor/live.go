package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Live pulls events from a stream. It has no index, so Seek always fails.
type Live struct {
	base
	events store.EventIterator
}

// NewLive creates a cursor over a live stream.
func NewLive(events store.EventIterator, opts ...Option) *Live {
	return &Live{
		base:   newBase(store.ModeLive.String(), opts),
		events: events,
	}
}

// Next implements Cursor.
func (c *Live) Next(ctx context.Context) (ev store.Event, err error) {
	start := time.Now()
	defer func() { c.recordAdvance(ctx, start, err) }()

	if c.state == Exhausted {
		return nil, c.exhaust()
	}
	ev, err = c.events.Next(ctx)
	if errors.Is(err, store.ErrEnd) {
		return nil, c.exhaust()
	}
	if err != nil {
		return nil, c.storeErr("events", err)
	}
	c.land(ev, Position{Event: c.advanced})
	c.advanced++
	return ev, nil
}

// Seek implements Cursor. It always returns an
// *errors.UnsupportedOperationError and leaves the cursor unchanged.
func (c *Live) Seek(ctx context.Context, target Target) (store.Event, error) {
	return c.seekSpan(ctx, target, func(context.Context) (store.Event, error) {
		return nil, c.unsupported(target, "live streams have no index")
	})
}

var _ Cursor = (*Live)(nil)
