package cursor

import (
	"errors"

	"github.com/randalmurphal/datasource/pkg/datasource/record"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// ErrNoCalibrator is returned by Cache.Calibrated when the cursor was built
// without a calibrated accessor.
var ErrNoCalibrator = errors.New("no calibrated accessor")

// ErrNoEvent is returned by Cache lookups made while no event is current.
var ErrNoEvent = errors.New("no current event")

type calibrated struct {
	view *record.View
	err  error
}

// Cache holds everything derived from the current event: the key listing
// grouped by source, raw source views, calibrated views and memo values.
// Reset drops all of it. A Cache belongs to one cursor and is not safe for
// concurrent use.
type Cache struct {
	table      *schema.Table
	calibrator store.Calibrator

	event      store.Event
	snap       *record.Snapshot
	calibrated map[string]calibrated
	memo       map[string]any
	generation uint64
}

// NewCache creates an empty cache.
func NewCache(table *schema.Table, calibrator store.Calibrator) *Cache {
	return &Cache{
		table:      table,
		calibrator: calibrator,
		calibrated: make(map[string]calibrated),
		memo:       make(map[string]any),
	}
}

// Reset makes ev the cached event and drops every derived value. A nil
// event leaves the cache empty.
func (c *Cache) Reset(ev store.Event) {
	c.event = ev
	c.snap = nil
	if ev != nil {
		c.snap = record.NewSnapshot(ev, c.table)
	}
	clear(c.calibrated)
	clear(c.memo)
	c.generation++
}

// Generation counts resets. Values derived under one generation are stale
// under any other.
func (c *Cache) Generation() uint64 { return c.generation }

// Event returns the current event, or nil.
func (c *Cache) Event() store.Event { return c.event }

// Keys returns the current event's key listing grouped by source.
func (c *Cache) Keys() *record.KeySet {
	if c.snap == nil {
		return record.GroupKeys(nil)
	}
	return c.snap.Keys()
}

// Has reports whether the current event carries any record for source.
func (c *Cache) Has(source string) bool {
	return c.snap != nil && c.snap.Keys().Has(source)
}

// Source returns the raw view of a source in the current event.
func (c *Cache) Source(source string) (*record.SourceView, bool) {
	if c.snap == nil {
		return nil, false
	}
	return c.snap.Source(source)
}

// Calibrated returns the calibrated view of a source in the current event.
// The result, failures included, is fetched once per event.
func (c *Cache) Calibrated(source string) (*record.View, error) {
	if c.event == nil {
		return nil, ErrNoEvent
	}
	if c.calibrator == nil {
		return nil, ErrNoCalibrator
	}
	if cached, ok := c.calibrated[source]; ok {
		return cached.view, cached.err
	}
	var entry calibrated
	rec, err := c.calibrator.Calibrated(c.event, source)
	if err != nil {
		entry.err = err
	} else {
		entry.view = record.NewView(rec, c.table)
	}
	c.calibrated[source] = entry
	return entry.view, entry.err
}

// Memo returns the value stored under key for the current event, computing
// it with fn on first use. Errors are not memoized.
func (c *Cache) Memo(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.memo[key]; ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	c.memo[key] = v
	return v, nil
}
