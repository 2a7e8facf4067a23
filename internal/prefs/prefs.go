// Package prefs persists per-client viewer preferences in SQLite.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joeblew999/plat-patch/internal/patch"
)

const schema = `
CREATE TABLE IF NOT EXISTS viewer_prefs (
	client_id  TEXT PRIMARY KEY,
	dark_mode  INTEGER NOT NULL DEFAULT 0,
	basemap    TEXT NOT NULL DEFAULT 'custom',
	updated_at INTEGER NOT NULL
)`

// Prefs are the settings a viewer keeps across visits.
type Prefs struct {
	DarkMode bool          `json:"darkMode" doc:"Dark colour scheme enabled"`
	Basemap  patch.Basemap `json:"basemap" doc:"Basemap: custom or satellite" enum:"custom,satellite"`
}

// Defaults is what a first-time client gets.
func Defaults() Prefs {
	return Prefs{Basemap: patch.BasemapCustom}
}

// Store persists prefs in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the store at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("prefs path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; also keeps a :memory: database alive on a single connection.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create prefs table: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get returns the prefs of a client, or Defaults when none are stored.
func (s *Store) Get(ctx context.Context, clientID string) (Prefs, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Defaults(), nil
	}
	var (
		dark    int
		basemap string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT dark_mode, basemap FROM viewer_prefs WHERE client_id = ?`, clientID,
	).Scan(&dark, &basemap)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Prefs{}, fmt.Errorf("get prefs: %w", err)
	}
	return Prefs{DarkMode: dark != 0, Basemap: patch.ParseBasemap(basemap)}, nil
}

// Save upserts the prefs of a client.
func (s *Store) Save(ctx context.Context, clientID string, p Prefs) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("client id is required")
	}
	dark := 0
	if p.DarkMode {
		dark = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO viewer_prefs (client_id, dark_mode, basemap, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			dark_mode = excluded.dark_mode,
			basemap = excluded.basemap,
			updated_at = excluded.updated_at`,
		clientID, dark, string(patch.ParseBasemap(string(p.Basemap))), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	return nil
}

// Update loads, mutates and saves the prefs of a client.
func (s *Store) Update(ctx context.Context, clientID string, fn func(*Prefs)) (Prefs, error) {
	p, err := s.Get(ctx, clientID)
	if err != nil {
		return Prefs{}, err
	}
	fn(&p)
	if err := s.Save(ctx, clientID, p); err != nil {
		return Prefs{}, err
	}
	return p, nil
}
