package cursor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	dserrors "github.com/randalmurphal/datasource/pkg/datasource/errors"
	"github.com/randalmurphal/datasource/pkg/datasource/observability"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// State is the position state of a cursor.
type State int

const (
	// Unpositioned means no event has been fetched yet.
	Unpositioned State = iota
	// Positioned means the cursor holds a current event.
	Positioned
	// Exhausted means the sequence ended. Next keeps returning ErrExhausted.
	Exhausted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unpositioned:
		return "unpositioned"
	case Positioned:
		return "positioned"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DetachedStep is the Step of a position reached by seeking a step-chunked
// cursor.
const DetachedStep = -1

// Position locates the current event. Event counts from 0 within the step
// for step-chunked cursors and within the run otherwise.
type Position struct {
	Run   int
	Step  int
	Event int
}

// String returns "run/step/event".
func (p Position) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Run, p.Step, p.Event)
}

// Target is a seek destination: an event index within the run or an
// event time.
type Target struct {
	index  int
	time   store.TimeTuple
	byTime bool
}

// AtIndex targets the i-th event of the run.
func AtIndex(i int) Target {
	return Target{index: i}
}

// AtTime targets the event with time t.
func AtTime(t store.TimeTuple) Target {
	return Target{time: t, byTime: true}
}

// Index returns the target index and whether the target is an index.
func (t Target) Index() (int, bool) {
	return t.index, !t.byTime
}

// Time returns the target time and whether the target is a time.
func (t Target) Time() (store.TimeTuple, bool) {
	return t.time, t.byTime
}

// String renders the target for logs and errors.
func (t Target) String() string {
	if t.byTime {
		return "time " + t.time.String()
	}
	return fmt.Sprintf("index %d", t.index)
}

// Cursor is the common interface of every cursor variant.
type Cursor interface {
	// Next advances to the next event. At the end of the sequence it
	// returns errors.ErrExhausted.
	Next(ctx context.Context) (store.Event, error)

	// Seek moves to a target. A failed seek leaves the cursor unchanged.
	Seek(ctx context.Context, target Target) (store.Event, error)

	// Current returns the current event, or nil when not positioned.
	Current() store.Event

	// Position returns the coordinates of the current event.
	Position() Position

	// State returns the position state.
	State() State

	// Cache returns the per-event cache.
	Cache() *Cache

	// Mode returns the access mode name: "idx", "smd" or "live".
	Mode() string
}

// Events iterates a cursor from its current position until exhaustion.
// Exhaustion ends the loop; any other error is yielded once and ends it.
func Events(ctx context.Context, c Cursor) iter.Seq2[store.Event, error] {
	return func(yield func(store.Event, error) bool) {
		for {
			ev, err := c.Next(ctx)
			if errors.Is(err, dserrors.ErrExhausted) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// RunHook is called when an indexed cursor enters a new run, before the
// run's first event is returned.
type RunHook func(ctx context.Context, run store.Run) error

// StepHook is called when a step-chunked cursor enters a new step, before
// the step's first event is returned.
type StepHook func(ctx context.Context, step store.Step, index int) error

// options holds configuration shared by every cursor.
type options struct {
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	table      *schema.Table
	calibrator store.Calibrator
	onRun      RunHook
	onStep     StepHook
}

func defaultOptions() options {
	return options{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a cursor.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSpans sets the span manager. Default: no-op.
func WithSpans(s observability.SpanManager) Option {
	return func(o *options) {
		if s != nil {
			o.spans = s
		}
	}
}

// WithTable sets the schema table record views are built with.
func WithTable(table *schema.Table) Option {
	return func(o *options) {
		o.table = table
	}
}

// WithCalibrator sets the accessor serving calibrated views.
func WithCalibrator(c store.Calibrator) Option {
	return func(o *options) {
		o.calibrator = c
	}
}

// WithRunHook registers a hook fired on every new run.
func WithRunHook(h RunHook) Option {
	return func(o *options) {
		o.onRun = h
	}
}

// WithStepHook registers a hook fired on every new step.
func WithStepHook(h StepHook) Option {
	return func(o *options) {
		o.onStep = h
	}
}

// base carries the state machine shared by every variant.
type base struct {
	mode     string
	opts     options
	state    State
	pos      Position
	cache    *Cache
	advanced int
}

func newBase(mode string, opts []Option) base {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return base{
		mode:  mode,
		opts:  o,
		cache: NewCache(o.table, o.calibrator),
	}
}

// Current implements Cursor.
func (b *base) Current() store.Event { return b.cache.Event() }

// Position implements Cursor.
func (b *base) Position() Position { return b.pos }

// State implements Cursor.
func (b *base) State() State { return b.state }

// Cache implements Cursor.
func (b *base) Cache() *Cache { return b.cache }

// Mode implements Cursor.
func (b *base) Mode() string { return b.mode }

// land makes ev the current event. The cache is reset before anything
// can observe the new position.
func (b *base) land(ev store.Event, pos Position) {
	b.cache.Reset(ev)
	b.pos = pos
	b.state = Positioned
}

// exhaust moves to the Exhausted state and returns the sentinel.
func (b *base) exhaust() error {
	if b.state != Exhausted {
		observability.LogExhausted(b.opts.logger, b.advanced)
	}
	b.cache.Reset(nil)
	b.state = Exhausted
	return dserrors.ErrExhausted
}

// recordAdvance reports one Next. Exhaustion is reported as success.
func (b *base) recordAdvance(ctx context.Context, start time.Time, err error) {
	if errors.Is(err, dserrors.ErrExhausted) {
		err = nil
	}
	b.opts.metrics.RecordAdvance(ctx, b.mode, time.Since(start), err)
}

// seekSpan wraps a seek in a span, metrics and a debug log.
func (b *base) seekSpan(ctx context.Context, target Target, fn func(ctx context.Context) (store.Event, error)) (store.Event, error) {
	ctx, span := b.opts.spans.StartSeekSpan(ctx, target.String())
	ev, err := fn(ctx)
	b.opts.spans.EndSpanWithError(span, err)
	b.opts.metrics.RecordSeek(ctx, b.mode, err)
	if err == nil {
		observability.LogSeek(b.opts.logger, target.String(), b.pos.Step, b.pos.Event)
	}
	return ev, err
}

func (b *base) unsupported(target Target, reason string) error {
	var input any = target.String()
	if i, ok := target.Index(); ok {
		input = i
	}
	return &dserrors.UnsupportedOperationError{
		Op:     "seek",
		Mode:   b.mode,
		Input:  input,
		Reason: reason,
	}
}

// storeErr wraps an iterator failure that is not end-of-sequence.
func (b *base) storeErr(op string, err error) error {
	return &dserrors.StoreError{Op: op, Source: b.mode, Err: err}
}
