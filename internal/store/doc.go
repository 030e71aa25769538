// Package store provides the durable local store for notedock using SQLite.
//
// The data model is fixed at three singleton records, each living in its own
// single-row table keyed by id = 1:
//
//   - Note: the overlay's text content plus an updated_at timestamp
//   - PanelLayout: optional geometry fields for the resizable panel
//   - ButtonLayout: position of the floating toggle button
//
// All puts are whole-row upserts. The store never merges a partial layout
// with what was previously stored; callers that want merge semantics read,
// modify, and write themselves.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Schema versions are tracked in schema_migrations; the current version is 1
// and the upgrade path is reserved for future versions.
//
// # Legacy Import
//
// ImportLegacy moves values read from the legacy synchronized store into the
// three tables inside one transaction. A failure anywhere rolls back every
// write, so the migrator can safely retry on the next initialization.
//
// Tests open a store under t.TempDir().
package store
