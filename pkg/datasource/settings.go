package datasource

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/randalmurphal/datasource/pkg/datasource/config"
	"github.com/randalmurphal/datasource/pkg/datasource/detector"
	"github.com/randalmurphal/datasource/pkg/datasource/devconfig"
	"github.com/randalmurphal/datasource/pkg/datasource/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// openSettings wires the settings store and the settings file, loading
// whatever they already hold.
func (ds *DataSource) openSettings() error {
	switch {
	case ds.opts.settingsStore != nil:
		ds.settingsStore = ds.opts.settingsStore
	case ds.opts.settingsDB != "":
		path, err := config.NewExpander(config.WithMissingAction(config.MissingError)).
			Expand(ds.opts.settingsDB, ds.spec.Vars())
		if err != nil {
			return fmt.Errorf("settings db path: %w", err)
		}
		s, err := devconfig.Open(path)
		if err != nil {
			return fmt.Errorf("open settings db: %w", err)
		}
		ds.settingsStore = s
	}
	if ds.settingsStore != nil {
		if _, err := ds.LoadSettings(); err != nil {
			return err
		}
	}

	path := ds.opts.settingsFile
	if path == "" {
		return nil
	}
	n, err := ds.loadSettingsFile()
	if errors.Is(err, fs.ErrNotExist) {
		// The file may be created later; the watcher picks it up.
		err = nil
	}
	observability.LogSettingsReload(ds.logger, path, n, err)

	if !ds.spec.Live() {
		return nil
	}
	w, err := config.Watch(path,
		config.WithDebounce(ds.opts.watchDebounce),
		config.WithWatchLogger(ds.logger),
	)
	if err != nil {
		return fmt.Errorf("watch settings file: %w", err)
	}
	ds.watcher = w
	return nil
}

// settingsFor returns the settings of an alias, creating them on first use.
// Settings outlive configuration changes and detector rebuilds.
func (ds *DataSource) settingsFor(alias string) *detector.Settings {
	s, ok := ds.settings[alias]
	if !ok {
		s = detector.NewSettings()
		ds.settings[alias] = s
	}
	return s
}

// Settings returns the user-defined attribute settings of an alias.
func (ds *DataSource) Settings(alias string) (*detector.Settings, error) {
	if _, ok := ds.config.Alias(alias); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	return ds.settingsFor(alias), nil
}

// SaveSettings persists the settings of the given aliases, or of every
// alias with settings when none are given. Properties are not persisted.
func (ds *DataSource) SaveSettings(aliases ...string) error {
	if ds.settingsStore == nil {
		return ErrNoSettingsStore
	}
	if len(aliases) == 0 {
		for alias, s := range ds.settings {
			if !s.Empty() {
				aliases = append(aliases, alias)
			}
		}
		sort.Strings(aliases)
	}

	runKey := ds.spec.RunKey()
	var errs []error
	for _, alias := range aliases {
		entry, ok := ds.config.Alias(alias)
		if !ok {
			errs = append(errs, &SettingsError{Alias: alias, Op: "save", Err: ErrUnknownAlias})
			continue
		}
		data, err := ds.settingsFor(alias).Encode()
		if err != nil {
			errs = append(errs, &SettingsError{Alias: alias, Op: "save", Err: err})
			continue
		}
		if err := devconfig.Put(ds.settingsStore, devconfig.NewEnvelope(runKey, alias, entry.Source, data)); err != nil {
			errs = append(errs, &SettingsError{Alias: alias, Op: "save", Err: err})
		}
	}
	return errors.Join(errs...)
}

// LoadSettings merges the stored settings of the run into the current
// aliases and returns how many aliases were loaded. Stored settings for
// aliases the configuration does not define are skipped.
func (ds *DataSource) LoadSettings() (int, error) {
	if ds.settingsStore == nil {
		return 0, ErrNoSettingsStore
	}
	runKey := ds.spec.RunKey()
	infos, err := ds.settingsStore.List(runKey)
	if err != nil {
		return 0, fmt.Errorf("list settings for %s: %w", runKey, err)
	}

	n := 0
	var errs []error
	for _, info := range infos {
		if _, ok := ds.config.Alias(info.Alias); !ok {
			ds.logger.Debug("stored settings for unknown alias", slog.String("alias", info.Alias))
			continue
		}
		env, err := devconfig.Get(ds.settingsStore, runKey, info.Alias)
		if err != nil {
			errs = append(errs, &SettingsError{Alias: info.Alias, Op: "load", Err: err})
			continue
		}
		s, err := detector.DecodeSettings(env.Settings)
		if err != nil {
			errs = append(errs, &SettingsError{Alias: info.Alias, Op: "load", Err: err})
			continue
		}
		ds.settingsFor(info.Alias).Merge(s)
		n++
	}
	return n, errors.Join(errs...)
}

// loadSettingsFile merges the settings file into the current aliases. The
// file maps alias to a settings document.
func (ds *DataSource) loadSettingsFile() (int, error) {
	cfg, err := config.FromFile(ds.opts.settingsFile)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, alias := range cfg.Keys() {
		if _, ok := ds.config.Alias(alias); !ok {
			ds.logger.Debug("settings file names unknown alias", slog.String("alias", alias))
			continue
		}
		data, err := json.Marshal(cfg.Sub(alias).Raw())
		if err != nil {
			errs = append(errs, &SettingsError{Alias: alias, Op: "reload", Err: err})
			continue
		}
		s, err := detector.DecodeSettings(data)
		if err != nil {
			errs = append(errs, &SettingsError{Alias: alias, Op: "reload", Err: err})
			continue
		}
		ds.settingsFor(alias).Merge(s)
		n++
	}
	return n, errors.Join(errs...)
}

// reloadIfDirty re-reads a changed settings file. Failures are logged and
// the previous settings stay in effect.
func (ds *DataSource) reloadIfDirty() {
	if ds.watcher == nil || !ds.watcher.Dirty() {
		return
	}
	n, err := ds.loadSettingsFile()
	observability.LogSettingsReload(ds.logger, ds.opts.settingsFile, n, err)
}
