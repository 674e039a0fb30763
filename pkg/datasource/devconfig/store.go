// Package devconfig persists per-alias detector settings, one row per
// (run, alias).
package devconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists settings documents keyed by run key and alias.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the document for an alias, replacing any previous one.
	Save(runKey, alias string, data []byte) error

	// Load retrieves a document.
	// Returns ErrNotFound if none exists.
	Load(runKey, alias string) ([]byte, error)

	// List returns every document for a run, ordered by save sequence.
	// Returns an empty slice (not an error) if the run has none.
	List(runKey string) ([]Info, error)

	// Delete removes one alias's document. Missing documents are not an error.
	Delete(runKey, alias string) error

	// DeleteRun removes every document for a run.
	DeleteRun(runKey string) error

	// Close releases any resources.
	Close() error
}

// Info describes a stored document without loading it.
type Info struct {
	RunKey   string
	Alias    string
	Sequence int
	Saved    time.Time
	Size     int64
}

var (
	// ErrNotFound indicates no settings are stored for the alias.
	ErrNotFound = errors.New("settings not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("settings store closed")
)

// Open returns a MemoryStore for an empty path or ":memory:", and a
// SQLiteStore otherwise. Missing parent directories are created.
func Open(path string) (Store, error) {
	if path == "" || path == ":memory:" {
		return NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return NewSQLiteStore(path)
}
