// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Three single-row tables with a versioned schema and transactional legacy import

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// singletonID is the fixed primary key every record lives under. The data
// model holds exactly one note, one panel layout, one button layout.
const singletonID = 1

// schemaVersion is the current schema version recorded in schema_migrations.
const schemaVersion = 1

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a new SQLite store at the given path. The schema is created
// if it doesn't exist and pending version upgrades are applied. Parent
// directories are created if needed. Opening the same path twice yields the
// same on-disk state; callers serialize concurrent opens.
func Open(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runUpgrades(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema upgrades: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notes (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			content    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS panel_layout (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			layout     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS button_layout (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			layout     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runUpgrades applies version upgrades for existing databases and records
// the current version. Upgrades run against existing data without loss;
// there are none beyond version 1 yet, the path is reserved.
func (s *SQLiteStore) runUpgrades() error {
	var current int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	upgrades := []struct {
		version int
		apply   func(*sql.Tx) error
	}{
		{version: 1, apply: func(*sql.Tx) error { return nil }},
	}

	for _, u := range upgrades {
		if u.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning upgrade transaction: %w", err)
		}
		if err := u.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying schema version %d: %w", u.version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			u.version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording schema version %d: %w", u.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing schema version %d: %w", u.version, err)
		}
		if u.version > 1 {
			s.logger.Info("applied schema upgrade", "version", u.version)
		}
	}

	if current > schemaVersion {
		s.logger.Warn("database schema is newer than this build", "db_version", current, "supported", schemaVersion)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetNote retrieves the stored note.
// Returns ErrNotFound if no note has ever been saved.
func (s *SQLiteStore) GetNote(ctx context.Context) (*Note, error) {
	var note Note
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT content, updated_at FROM notes WHERE id = ?`, singletonID,
	).Scan(&note.Content, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying note: %w", err)
	}

	note.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &note, nil
}

// PutNote upserts the note with a fresh timestamp.
func (s *SQLiteStore) PutNote(ctx context.Context, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, content, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, singletonID, content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting note: %w", err)
	}

	s.logger.Debug("saved note", "size", len(content))
	return nil
}

// GetPanelLayout retrieves the stored panel layout.
// Returns ErrNotFound if no layout has ever been saved.
func (s *SQLiteStore) GetPanelLayout(ctx context.Context) (*PanelLayout, error) {
	raw, err := s.getLayoutRow(ctx, "panel_layout")
	if err != nil {
		return nil, err
	}
	var layout PanelLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decoding panel layout: %w", err)
	}
	return &layout, nil
}

// PutPanelLayout upserts the panel layout. The write replaces the whole row:
// fields absent from layout are gone after the upsert.
func (s *SQLiteStore) PutPanelLayout(ctx context.Context, layout *PanelLayout) error {
	raw, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encoding panel layout: %w", err)
	}
	if err := s.putLayoutRow(ctx, "panel_layout", raw); err != nil {
		return err
	}
	s.logger.Debug("saved panel layout")
	return nil
}

// GetButtonLayout retrieves the stored floating button layout.
// Returns ErrNotFound if no layout has ever been saved.
func (s *SQLiteStore) GetButtonLayout(ctx context.Context) (*ButtonLayout, error) {
	raw, err := s.getLayoutRow(ctx, "button_layout")
	if err != nil {
		return nil, err
	}
	var layout ButtonLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decoding button layout: %w", err)
	}
	return &layout, nil
}

// PutButtonLayout upserts the floating button layout, replacing the whole row.
func (s *SQLiteStore) PutButtonLayout(ctx context.Context, layout *ButtonLayout) error {
	raw, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encoding button layout: %w", err)
	}
	if err := s.putLayoutRow(ctx, "button_layout", raw); err != nil {
		return err
	}
	s.logger.Debug("saved button layout")
	return nil
}

// getLayoutRow reads the layout JSON from a single-row layout table.
func (s *SQLiteStore) getLayoutRow(ctx context.Context, table string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT layout FROM `+table+` WHERE id = ?`, singletonID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	return raw, nil
}

// putLayoutRow upserts the layout JSON into a single-row layout table.
func (s *SQLiteStore) putLayoutRow(ctx context.Context, table string, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, layout, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET layout = excluded.layout, updated_at = excluded.updated_at
	`, singletonID, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting %s: %w", table, err)
	}
	return nil
}

// ImportLegacy writes every present snapshot value inside one transaction.
// Layout values are validated before writing so a malformed legacy value
// rolls the whole import back instead of landing partially.
func (s *SQLiteStore) ImportLegacy(ctx context.Context, snap LegacySnapshot) error {
	if snap.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	if snap.Content != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, content, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
		`, singletonID, *snap.Content, now); err != nil {
			return fmt.Errorf("importing note: %w", err)
		}
	}

	if snap.Layout != nil {
		var layout PanelLayout
		if err := json.Unmarshal(snap.Layout, &layout); err != nil {
			return fmt.Errorf("validating legacy panel layout: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO panel_layout (id, layout, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET layout = excluded.layout, updated_at = excluded.updated_at
		`, singletonID, string(snap.Layout), now); err != nil {
			return fmt.Errorf("importing panel layout: %w", err)
		}
	}

	if snap.ButtonLayout != nil {
		var layout ButtonLayout
		if err := json.Unmarshal(snap.ButtonLayout, &layout); err != nil {
			return fmt.Errorf("validating legacy button layout: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO button_layout (id, layout, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET layout = excluded.layout, updated_at = excluded.updated_at
		`, singletonID, string(snap.ButtonLayout), now); err != nil {
			return fmt.Errorf("importing button layout: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import transaction: %w", err)
	}

	s.logger.Info("imported legacy data",
		"note", snap.Content != nil,
		"panel_layout", snap.Layout != nil,
		"button_layout", snap.ButtonLayout != nil)
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
