package datasource

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/randalmurphal/datasource/pkg/datasource/config"
	"github.com/randalmurphal/datasource/pkg/datasource/devconfig"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// DefaultSettingsPath is the conventional WithSettingsDB template, relative
// to the experiment data root.
const DefaultSettingsPath = "${instrument}/${experiment}/scratch/nc/run${run}.db"

// DefaultCodeFlags are the event-code flags evaluated for every event
// unless replaced with WithCodeFlags.
var DefaultCodeFlags = map[string][]int{
	"XrayOff": {162},
	"XrayOn":  {-162},
}

// options holds configuration for opening a DataSource.
type options struct {
	logger  *slog.Logger
	metrics bool
	tracing bool

	mode *store.Mode

	table         *schema.Table
	schemaFile    string
	calibrator    store.Calibrator
	aliasDefaults map[string]string
	codeFlags     map[string][]int

	settingsDB    string
	settingsStore devconfig.Store
	settingsFile  string
	watchDebounce time.Duration

	retryAttempts int
	retryBackoff  time.Duration
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		codeFlags:     DefaultCodeFlags,
		watchDebounce: config.DefaultDebounce,
		retryAttempts: 5,
		retryBackoff:  500 * time.Millisecond,
	}
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics.
// Default: false
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metrics = enabled
	}
}

// WithTracing enables OpenTelemetry tracing.
// Default: false
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracing = enabled
	}
}

// WithMode overrides the access mode of the spec passed to Open.
func WithMode(m store.Mode) Option {
	return func(o *options) {
		o.mode = &m
	}
}

// WithTable sets the schema table. Default: a table with the built-in
// schemas, plus the WithSchemaFile document if set.
func WithTable(t *schema.Table) Option {
	return func(o *options) {
		o.table = t
	}
}

// WithSchemaFile adds a YAML schema document, consulted for types the
// built-in schemas do not describe. Ignored when WithTable is set.
func WithSchemaFile(path string) Option {
	return func(o *options) {
		o.schemaFile = path
	}
}

// WithCalibrator sets the calibrated accessor. Default: the opened store,
// if it implements store.Calibrator.
func WithCalibrator(c store.Calibrator) Option {
	return func(o *options) {
		o.calibrator = c
	}
}

// WithAliasDefaults replaces the source-to-alias exception table.
func WithAliasDefaults(m map[string]string) Option {
	return func(o *options) {
		o.aliasDefaults = maps.Clone(m)
	}
}

// WithCodeFlags replaces the event-code flags evaluated by Event.Flags.
// A negative code requires the code to be absent.
func WithCodeFlags(flags map[string][]int) Option {
	return func(o *options) {
		o.codeFlags = maps.Clone(flags)
	}
}

// WithSettingsDB persists detector settings in a database at path. The
// path may use ${instrument}, ${experiment}, ${run} and ${mode}. An empty
// path or ":memory:" keeps settings in memory.
func WithSettingsDB(path string) Option {
	return func(o *options) {
		if path == "" {
			path = ":memory:"
		}
		o.settingsDB = path
		o.settingsStore = nil
	}
}

// WithSettingsStore persists detector settings in s. The DataSource closes
// it on Close.
func WithSettingsStore(s devconfig.Store) Option {
	return func(o *options) {
		o.settingsStore = s
		o.settingsDB = ""
	}
}

// WithSettingsFile loads detector settings from a YAML or JSON file mapping
// alias to settings. In live mode the file is watched and reloaded.
func WithSettingsFile(path string) Option {
	return func(o *options) {
		o.settingsFile = path
	}
}

// WithWatchDebounce sets the quiet period before a settings file change is
// picked up.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.watchDebounce = d
		}
	}
}

// WithRetry sets how live sessions are opened: the number of attempts and
// the initial backoff between them.
// Default: 5 attempts, 500ms
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.retryAttempts = attempts
		}
		if backoff > 0 {
			o.retryBackoff = backoff
		}
	}
}

// OptionsFromConfig maps configuration keys onto options:
//
//	mode            idx, smd or live
//	live            true forces live mode
//	schema_file     YAML schema document
//	settings_db     settings database path template
//	settings_file   watched settings file
//	retry_attempts  live open attempts
//	retry_backoff   initial live open backoff, e.g. "250ms"
//	metrics         enable OpenTelemetry metrics
//	tracing         enable OpenTelemetry tracing
func OptionsFromConfig(cfg config.Config) ([]Option, error) {
	var opts []Option
	if cfg.Has("mode") {
		m, err := store.ParseMode(cfg.String("mode", ""))
		if err != nil {
			return nil, fmt.Errorf("config key mode: %w", err)
		}
		opts = append(opts, WithMode(m))
	}
	if cfg.Bool("live", false) {
		opts = append(opts, WithMode(store.ModeLive))
	}
	if path := cfg.String("schema_file", ""); path != "" {
		opts = append(opts, WithSchemaFile(path))
	}
	if cfg.Has("settings_db") {
		opts = append(opts, WithSettingsDB(cfg.String("settings_db", "")))
	}
	if path := cfg.String("settings_file", ""); path != "" {
		opts = append(opts, WithSettingsFile(path))
	}
	if cfg.Has("retry_attempts") || cfg.Has("retry_backoff") {
		opts = append(opts, WithRetry(cfg.Int("retry_attempts", 0), cfg.Duration("retry_backoff", 0)))
	}
	opts = append(opts,
		WithMetrics(cfg.Bool("metrics", false)),
		WithTracing(cfg.Bool("tracing", false)),
	)
	return opts, nil
}
