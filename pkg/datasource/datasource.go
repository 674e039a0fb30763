package datasource

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/datasource/pkg/datasource/config"
	"github.com/randalmurphal/datasource/pkg/datasource/configdata"
	"github.com/randalmurphal/datasource/pkg/datasource/cursor"
	"github.com/randalmurphal/datasource/pkg/datasource/detector"
	"github.com/randalmurphal/datasource/pkg/datasource/devconfig"
	dserrors "github.com/randalmurphal/datasource/pkg/datasource/errors"
	"github.com/randalmurphal/datasource/pkg/datasource/observability"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/selector"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// evrAlias is the pseudo-alias selection expressions use for event codes.
const evrAlias = "Evr"

// DataSource is one opened run: its store, resolved configuration, cursor
// and detectors. It is not safe for concurrent use.
type DataSource struct {
	spec    store.Spec
	opts    options
	session string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	store     store.Store
	companion store.Store
	table     *schema.Table
	resolver  *configdata.Resolver
	cursor    cursor.Cursor
	config    *configdata.Config
	selector  *selector.Evaluator

	current   *Event
	detectors map[string]*detector.Detector
	settings  map[string]*detector.Settings

	settingsStore devconfig.Store
	watcher       *config.Watcher
	closed        bool
}

// Open loads the run named by spec.
//
// An smd spec opens the small-data store plus an idx companion for
// seeking. When the small-data store cannot be opened, or its
// configuration has no Partition record, Open falls back to idx. A live
// spec is opened with retry while the store reports transient failures.
// When no access form can be loaded Open returns a
// *errors.ConfigLoadError.
func Open(ctx context.Context, opener store.Opener, spec store.Spec, opts ...Option) (_ *DataSource, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.mode != nil {
		spec = spec.WithMode(*o.mode)
	}

	session := uuid.NewString()
	ds := &DataSource{
		spec:      spec,
		opts:      o,
		session:   session,
		logger:    observability.EnrichLogger(o.logger, session, spec.String()),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		selector:  selector.New(),
		detectors: make(map[string]*detector.Detector),
		settings:  make(map[string]*detector.Settings),
	}
	if o.metrics {
		ds.metrics = observability.NewMetricsRecorder()
	}
	if o.tracing {
		ds.spans = observability.NewSpanManager()
	}

	ctx, span := ds.spans.StartLoadSpan(ctx, spec.String(), session)
	elapsed := observability.TimedOperation()
	defer func() {
		ds.spans.EndSpanWithError(span, err)
		ds.metrics.RecordRunLoad(ctx, ds.spec.Mode.String(), err == nil)
		if err != nil {
			_ = ds.Close()
		}
	}()

	if ds.table, err = o.buildTable(); err != nil {
		return nil, err
	}
	if err = ds.load(ctx, opener); err != nil {
		return nil, err
	}

	resolverOpts := []configdata.ResolverOption{
		configdata.WithLive(ds.spec.Live()),
		configdata.WithRun(ds.spec.String()),
		configdata.WithLogger(ds.logger),
	}
	if o.aliasDefaults != nil {
		resolverOpts = append(resolverOpts, configdata.WithAliasDefaults(o.aliasDefaults))
	}
	ds.resolver = configdata.NewResolver(ds.table, resolverOpts...)
	if err = ds.resolve(ctx, ds.store.Config()); err != nil {
		return nil, err
	}

	if ds.cursor, err = ds.newCursor(ctx); err != nil {
		return nil, err
	}
	if err = ds.openSettings(); err != nil {
		return nil, err
	}

	observability.LogRunLoad(ds.logger, ds.spec.Mode.String(), len(ds.config.AliasNames()), elapsed())
	return ds, nil
}

func (o options) buildTable() (*schema.Table, error) {
	if o.table != nil {
		return o.table, nil
	}
	var tableOpts []schema.TableOption
	if o.schemaFile != "" {
		loader, err := schema.LoadYAMLFile(o.schemaFile)
		if err != nil {
			return nil, fmt.Errorf("load schema file: %w", err)
		}
		tableOpts = append(tableOpts, schema.WithLoader(loader))
	}
	return schema.NewTable(tableOpts...), nil
}

// load opens the store for the spec's mode, falling back from smd to idx.
func (ds *DataSource) load(ctx context.Context, opener store.Opener) error {
	spec := ds.spec
	var attempts []error

	switch spec.Mode {
	case store.ModeLive:
		st, err := ds.openLive(ctx, opener)
		if err != nil {
			return &dserrors.ConfigLoadError{Source: spec.String(), Attempts: []error{err}}
		}
		ds.store = st
		return nil

	case store.ModeSmallData:
		st, err := opener.Open(ctx, spec)
		if err == nil && !hasPartition(st.Config()) {
			_ = st.Close()
			err = &dserrors.MissingRecordError{RecordType: "Partition"}
		}
		if err == nil {
			ds.store = st
			ds.openCompanion(ctx, opener)
			return nil
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", spec, err))
		observability.LogRunFallback(ds.logger, store.ModeSmallData.String(), store.ModeIndexed.String(), err)
		spec = spec.WithMode(store.ModeIndexed)
	}

	st, err := opener.Open(ctx, spec)
	if err != nil {
		attempts = append(attempts, fmt.Errorf("%s: %w", spec, err))
		return &dserrors.ConfigLoadError{Source: ds.spec.String(), Attempts: attempts}
	}
	ds.spec = spec
	ds.store = st
	return nil
}

func (ds *DataSource) openLive(ctx context.Context, opener store.Opener) (store.Store, error) {
	cfg := dserrors.NewRetryConfig(
		dserrors.WithMaxAttempts(ds.opts.retryAttempts),
		dserrors.WithInitialBackoff(ds.opts.retryBackoff),
		dserrors.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			ds.logger.Warn("live open failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
				slog.Duration("wait", wait),
			)
		}),
	)
	res := dserrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (store.Store, error) {
		return opener.Open(ctx, ds.spec)
	})
	return res.Value, res.Err
}

// openCompanion opens the idx form of an smd run to serve seeks. Without
// it the DataSource still iterates but cannot seek.
func (ds *DataSource) openCompanion(ctx context.Context, opener store.Opener) {
	st, err := opener.Open(ctx, ds.spec.WithMode(store.ModeIndexed))
	if err != nil {
		ds.logger.Warn("index unavailable, seeking disabled", slog.String("error", err.Error()))
		return
	}
	ds.companion = st
}

func hasPartition(c store.Container) bool {
	if c == nil {
		return false
	}
	for _, k := range c.Keys() {
		if k.Type.Module == "Partition" {
			return true
		}
	}
	return false
}

func (ds *DataSource) calibrator() store.Calibrator {
	if ds.opts.calibrator != nil {
		return ds.opts.calibrator
	}
	if c, ok := ds.store.(store.Calibrator); ok {
		return c
	}
	return nil
}

func (ds *DataSource) newCursor(ctx context.Context) (cursor.Cursor, error) {
	opts := []cursor.Option{
		cursor.WithLogger(ds.logger),
		cursor.WithMetrics(ds.metrics),
		cursor.WithSpans(ds.spans),
		cursor.WithTable(ds.table),
	}
	if cal := ds.calibrator(); cal != nil {
		opts = append(opts, cursor.WithCalibrator(cal))
	}

	switch ds.spec.Mode {
	case store.ModeLive:
		events, err := ds.store.Events(ctx)
		if err != nil {
			return nil, fmt.Errorf("open event stream: %w", err)
		}
		return cursor.NewLive(events, opts...), nil

	case store.ModeSmallData:
		steps, err := ds.store.Steps(ctx)
		if err != nil {
			return nil, fmt.Errorf("open steps: %w", err)
		}
		var companion *cursor.Indexed
		if ds.companion != nil {
			runs, err := ds.companion.Runs(ctx)
			if err != nil {
				ds.logger.Warn("index runs unavailable, seeking disabled", slog.String("error", err.Error()))
			} else {
				companion = cursor.NewIndexed(runs, opts...)
			}
		}
		return cursor.NewStepChunked(steps, companion, append(opts, cursor.WithStepHook(ds.onStep))...), nil

	default:
		runs, err := ds.store.Runs(ctx)
		if err != nil {
			return nil, fmt.Errorf("open runs: %w", err)
		}
		return cursor.NewIndexed(runs, append(opts, cursor.WithRunHook(ds.onRun))...), nil
	}
}

func (ds *DataSource) onRun(ctx context.Context, run store.Run) error {
	ds.logger.Debug("run entered", slog.Int("run", run.Number()))
	return ds.resolve(ctx, run.Config())
}

func (ds *DataSource) onStep(ctx context.Context, step store.Step, index int) error {
	ds.logger.Debug("resolving step configuration", slog.Int("step", index))
	return ds.resolve(ctx, step.Config())
}

// resolve replaces the configuration. Detectors are rebuilt on next use;
// settings survive.
func (ds *DataSource) resolve(ctx context.Context, c store.Container) error {
	ctx, span := ds.spans.StartResolveSpan(ctx, ds.spec.String())
	start := time.Now()
	cfg, err := ds.resolver.Resolve(ctx, c)
	aliases := 0
	if cfg != nil {
		aliases = len(cfg.AliasNames())
	}
	ds.metrics.RecordConfigResolution(ctx, aliases, time.Since(start), err)
	ds.spans.EndSpanWithError(span, err)
	if err != nil {
		return err
	}
	ds.config = cfg
	clear(ds.detectors)
	return nil
}

// Reload re-resolves the store's current configuration and re-reads the
// settings file, if one is configured.
func (ds *DataSource) Reload(ctx context.Context) error {
	if ds.closed {
		return ErrClosed
	}
	if err := ds.resolve(ctx, ds.store.Config()); err != nil {
		return err
	}
	if ds.opts.settingsFile != "" {
		n, err := ds.loadSettingsFile()
		observability.LogSettingsReload(ds.logger, ds.opts.settingsFile, n, err)
		return err
	}
	return nil
}

// Next advances to the next event. At the end of the data it returns an
// error matching errors.ErrExhausted.
func (ds *DataSource) Next(ctx context.Context) (*Event, error) {
	if ds.closed {
		return nil, ErrClosed
	}
	ds.reloadIfDirty()

	ev, err := ds.cursor.Next(ctx)
	if err != nil {
		if errors.Is(err, dserrors.ErrExhausted) {
			ds.current = nil
		}
		return nil, err
	}
	if ds.spec.Live() {
		// Live configuration can change under a running session.
		if err := ds.resolve(ctx, ds.store.Config()); err != nil {
			return nil, err
		}
	}
	ds.current = newEvent(ev, ds.cursor, ds.opts.codeFlags)
	return ds.current, nil
}

// Seek moves to an event by run index or time. Live sessions cannot seek.
// In smd mode the next Next continues from the step position held before
// the seek.
func (ds *DataSource) Seek(ctx context.Context, target cursor.Target) (*Event, error) {
	if ds.closed {
		return nil, ErrClosed
	}
	ev, err := ds.cursor.Seek(ctx, target)
	if err != nil {
		return nil, err
	}
	ds.current = newEvent(ev, ds.cursor, ds.opts.codeFlags)
	return ds.current, nil
}

// Current returns the current event, or nil before the first Next and
// after exhaustion.
func (ds *DataSource) Current() *Event { return ds.current }

// Events iterates from the current position until the data is exhausted.
// Any other error is yielded once and ends the loop.
func (ds *DataSource) Events(ctx context.Context) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for {
			ev, err := ds.Next(ctx)
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

// NextWith advances to the next event carrying the alias's source.
func (ds *DataSource) NextWith(ctx context.Context, alias string) (*Event, error) {
	if _, ok := ds.config.Alias(alias); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	for {
		ev, err := ds.Next(ctx)
		if err != nil {
			return nil, err
		}
		if entry, ok := ds.config.Alias(alias); ok && ev.Has(entry.Source) {
			return ev, nil
		}
	}
}

// NextMatching advances to the next event for which expr holds. Names in
// expr are "alias.attribute", "Evr.present_N", event attributes such as
// "L3T" or configured code flags such as "XrayOn". Unknown names evaluate
// to nil.
func (ds *DataSource) NextMatching(ctx context.Context, expr string) (*Event, error) {
	for {
		ev, err := ds.Next(ctx)
		if err != nil {
			return nil, err
		}
		ok, err := ds.selector.Evaluate(expr, ds.lookup)
		if err != nil {
			return nil, fmt.Errorf("select %q: %w", expr, err)
		}
		if ok {
			return ev, nil
		}
	}
}

// Match evaluates expr against the current event.
func (ds *DataSource) Match(expr string) (bool, error) {
	if ds.current == nil {
		return false, ErrNotPositioned
	}
	return ds.selector.Evaluate(expr, ds.lookup)
}

func (ds *DataSource) lookup(name string) (any, bool) {
	if ds.current == nil {
		return nil, false
	}
	alias, field, dotted := strings.Cut(name, ".")
	if !dotted {
		return ds.current.EventAttr(name)
	}
	if alias == evrAlias {
		return ds.current.evrAttr(field)
	}
	d, err := ds.Detector(alias)
	if err != nil {
		return nil, false
	}
	return d.Value(field)
}

// currentAttrs serves event attributes of whatever event is current.
type currentAttrs struct {
	ds *DataSource
}

func (c currentAttrs) EventAttr(name string) (any, bool) {
	if c.ds.current == nil {
		return nil, false
	}
	return c.ds.current.EventAttr(name)
}

// Detector returns the detector for an alias. A detector keeps reading the
// current event across Next calls; after a configuration change Detector
// returns a fresh one bound to the new configuration.
func (ds *DataSource) Detector(alias string) (*detector.Detector, error) {
	if d, ok := ds.detectors[alias]; ok {
		return d, nil
	}
	entry, ok := ds.config.Alias(alias)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	d := detector.New(alias, entry.Source, ds.cursor.Cache(), ds.settingsFor(alias),
		detector.WithConfig(ds.config),
		detector.WithEventAttrs(currentAttrs{ds: ds}),
		detector.WithLogger(ds.logger),
	)
	ds.detectors[alias] = d
	return d, nil
}

// Aliases returns the visible aliases, sorted.
func (ds *DataSource) Aliases() []string { return ds.config.AliasNames() }

// Config returns the current resolved configuration.
func (ds *DataSource) Config() *configdata.Config { return ds.config }

// Cursor returns the underlying cursor.
func (ds *DataSource) Cursor() cursor.Cursor { return ds.cursor }

// Spec returns the spec actually loaded, after any mode fallback.
func (ds *DataSource) Spec() store.Spec { return ds.spec }

// SessionID identifies this DataSource in logs and traces.
func (ds *DataSource) SessionID() string { return ds.session }

// ShowInfo renders the data source line followed by the alias table.
func (ds *DataSource) ShowInfo() []string {
	rows := []string{fmt.Sprintf("Data source: %s", ds.spec)}
	if pos := ds.cursor.Position(); ds.current != nil {
		rows = append(rows, fmt.Sprintf("Event %s at %s", ds.current.EventID(), pos))
	}
	return append(rows, ds.config.ShowInfo()...)
}

// Close releases the settings store, the watcher and the stores.
// Close is idempotent.
func (ds *DataSource) Close() error {
	if ds.closed {
		return nil
	}
	ds.closed = true

	var errs []error
	if ds.watcher != nil {
		errs = append(errs, ds.watcher.Close())
	}
	if ds.settingsStore != nil {
		errs = append(errs, ds.settingsStore.Close())
	}
	if ds.companion != nil && ds.companion != ds.store {
		errs = append(errs, ds.companion.Close())
	}
	if ds.store != nil {
		errs = append(errs, ds.store.Close())
	}
	return errors.Join(errs...)
}
