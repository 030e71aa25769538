// ABOUTME: One-time migration from the legacy synchronized store into SQLite
// ABOUTME: Guarded by a persisted completion flag, performed in one atomic transaction

package migrate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/notedock/notedock/internal/legacy"
	"github.com/notedock/notedock/internal/localkv"
	"github.com/notedock/notedock/internal/store"
)

// State is the persisted migration state. There are exactly two states; an
// in-progress migration that dies simply reads as NotStarted and retries.
type State string

const (
	StateNotStarted State = ""
	StateCompleted  State = "completed"
)

// Migrator moves content, layout and buttonLayout from the legacy store into
// the durable store, at most once. Safe to invoke on every initialization.
type Migrator struct {
	legacy legacy.Store
	store  store.Store
	flags  *localkv.Store
	logger *slog.Logger
}

// New creates a Migrator. flags is the page-local store holding the
// completion flag.
func New(legacyStore legacy.Store, dst store.Store, flags *localkv.Store, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		legacy: legacyStore,
		store:  dst,
		flags:  flags,
		logger: logger.With("component", "migrate"),
	}
}

// Run performs the migration unless it already completed. The returned error
// reports a failed transaction or flag write; the caller is expected to
// swallow it and proceed with an effectively empty store, since the flag
// stays unset and the migration retries on the next initialization.
func (m *Migrator) Run(ctx context.Context) error {
	if m.readState() == StateCompleted {
		return nil
	}

	// One batched read. A failing read means there is nothing to migrate
	// right now; the flag stays unset so a later run can retry.
	values, err := m.legacy.Get(ctx, legacy.KeyContent, legacy.KeyLayout, legacy.KeyButtonLayout)
	if err != nil {
		m.logger.Warn("legacy store read failed, skipping migration", "error", err)
		return nil
	}

	snap := snapshotFromLegacy(values)

	if err := m.store.ImportLegacy(ctx, snap); err != nil {
		m.logger.Error("legacy import failed, will retry on next start", "error", err)
		return err
	}

	if err := m.flags.Set(localkv.KeyMigrationDone, string(StateCompleted)); err != nil {
		m.logger.Error("could not persist migration flag, will retry on next start", "error", err)
		return err
	}

	// Best effort only. The data is safe in the new store; a failed
	// cleanup leaves stale legacy keys behind but never rolls back.
	if err := m.legacy.Remove(ctx, legacy.KeyContent, legacy.KeyLayout, legacy.KeyButtonLayout); err != nil {
		m.logger.Warn("could not clear legacy store", "error", err)
	}

	if !snap.IsEmpty() {
		m.logger.Info("legacy migration complete",
			"note", snap.Content != nil,
			"panel_layout", snap.Layout != nil,
			"button_layout", snap.ButtonLayout != nil)
	}
	return nil
}

// readState reads the persisted state once per Run.
func (m *Migrator) readState() State {
	v, err := m.flags.Get(localkv.KeyMigrationDone)
	if err != nil {
		return StateNotStarted
	}
	return State(v)
}

// snapshotFromLegacy converts the batched read result into an import
// snapshot. Absent keys stay nil and never create records. The note content
// is stored as a JSON string in the legacy snapshot; a bare unquoted value
// is taken verbatim for robustness against hand-edited files.
func snapshotFromLegacy(values map[string]json.RawMessage) store.LegacySnapshot {
	var snap store.LegacySnapshot

	if raw, ok := values[legacy.KeyContent]; ok {
		var content string
		if err := json.Unmarshal(raw, &content); err != nil {
			content = string(raw)
		}
		snap.Content = &content
	}
	if raw, ok := values[legacy.KeyLayout]; ok {
		snap.Layout = raw
	}
	if raw, ok := values[legacy.KeyButtonLayout]; ok {
		snap.ButtonLayout = raw
	}
	return snap
}
