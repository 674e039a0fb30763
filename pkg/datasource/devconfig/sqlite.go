package devconfig

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists settings to a SQLite file, one row per (run, alias).
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a settings database.
// The path is a file path or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// :memory: databases are per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS device_settings (
			run_key TEXT NOT NULL,
			alias TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			saved TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (run_key, alias)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(runKey, alias string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO device_settings (run_key, alias, sequence, saved, data)
		VALUES (
			?, ?,
			COALESCE((SELECT MAX(sequence) FROM device_settings WHERE run_key = ?), 0) + 1,
			?, ?
		)
		ON CONFLICT(run_key, alias) DO UPDATE SET
			sequence = (SELECT MAX(sequence) FROM device_settings WHERE run_key = excluded.run_key) + 1,
			saved = excluded.saved,
			data = excluded.data
	`, runKey, alias, runKey, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(runKey, alias string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM device_settings
		WHERE run_key = ? AND alias = ?
	`, runKey, alias).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(runKey string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT alias, sequence, saved, LENGTH(data)
		FROM device_settings
		WHERE run_key = ?
		ORDER BY sequence
	`, runKey)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		info := Info{RunKey: runKey}
		var saved string
		if err := rows.Scan(&info.Alias, &info.Sequence, &saved, &info.Size); err != nil {
			return nil, fmt.Errorf("scan settings info: %w", err)
		}
		info.Saved, _ = time.Parse(time.RFC3339Nano, saved)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(runKey, alias string) error {
	return s.exec("delete settings", `DELETE FROM device_settings WHERE run_key = ? AND alias = ?`, runKey, alias)
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runKey string) error {
	return s.exec("delete run settings", `DELETE FROM device_settings WHERE run_key = ?`, runKey)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) exec(op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
