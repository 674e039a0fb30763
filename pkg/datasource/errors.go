package datasource

import (
	"errors"
	"fmt"
)

// Sentinel errors for the DataSource surface.
var (
	// ErrClosed indicates the DataSource has been closed.
	ErrClosed = errors.New("data source closed")

	// ErrUnknownAlias indicates an alias the current configuration does not define.
	ErrUnknownAlias = errors.New("unknown alias")

	// ErrNoSettingsStore indicates settings persistence was not configured.
	ErrNoSettingsStore = errors.New("no settings store configured")

	// ErrNotPositioned indicates an event accessor was used before Next or Seek.
	ErrNotPositioned = errors.New("no current event")
)

// SettingsError wraps a failure to load or save one alias's settings.
type SettingsError struct {
	// Alias is the detector alias.
	Alias string
	// Op is "save", "load" or "reload".
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SettingsError) Error() string {
	return fmt.Sprintf("%s settings for %s: %v", e.Op, e.Alias, e.Err)
}

// Unwrap returns the underlying error.
func (e *SettingsError) Unwrap() error {
	return e.Err
}
