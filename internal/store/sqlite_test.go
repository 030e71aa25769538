// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers singleton upserts, layout round-trips, and atomic legacy import

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// newTestStore creates a new SQLite store in a temporary directory for testing
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "notedock.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "notedock.db")
	ctx := context.Background()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.PutNote(ctx, "survives reopen"); err != nil {
		t.Fatalf("PutNote failed: %v", err)
	}
	s.Close()

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	note, err := s2.GetNote(ctx)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if note.Content != "survives reopen" {
		t.Errorf("content mismatch: got %q", note.Content)
	}
}

func TestGetNote_Empty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetNote(context.Background())
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutNote_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutNote(ctx, "hello"); err != nil {
		t.Fatalf("PutNote failed: %v", err)
	}
	if err := s.PutNote(ctx, "world"); err != nil {
		t.Fatalf("PutNote failed: %v", err)
	}

	note, err := s.GetNote(ctx)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if note.Content != "world" {
		t.Errorf("expected last write to win, got %q", note.Content)
	}
	if note.UpdatedAt.IsZero() {
		t.Error("UpdatedAt was not set")
	}
}

func TestPanelLayout_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	layout := &PanelLayout{
		X:       ptr(10.0),
		Y:       ptr(20.0),
		Width:   ptr(100.0),
		Height:  ptr(200.0),
		Visible: ptr(true),
	}
	if err := s.PutPanelLayout(ctx, layout); err != nil {
		t.Fatalf("PutPanelLayout failed: %v", err)
	}

	got, err := s.GetPanelLayout(ctx)
	if err != nil {
		t.Fatalf("GetPanelLayout failed: %v", err)
	}
	if *got.X != 10 || *got.Y != 20 || *got.Width != 100 || *got.Height != 200 {
		t.Errorf("geometry mismatch: %+v", got)
	}
	if got.Visible == nil || !*got.Visible {
		t.Error("visible flag lost")
	}
	if got.Minimized != nil {
		t.Error("minimized should be absent, it was never stored")
	}
}

// The upsert replaces the whole row: a partial save drops every field that
// is not part of the partial. This is the documented store-level behavior;
// merge semantics live a layer up, in the storage facade.
func TestPutPanelLayout_PartialOverwritesWholeRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	full := &PanelLayout{
		X:       ptr(10.0),
		Y:       ptr(20.0),
		Width:   ptr(100.0),
		Height:  ptr(200.0),
		Visible: ptr(true),
	}
	if err := s.PutPanelLayout(ctx, full); err != nil {
		t.Fatalf("PutPanelLayout failed: %v", err)
	}

	if err := s.PutPanelLayout(ctx, &PanelLayout{Visible: ptr(false)}); err != nil {
		t.Fatalf("PutPanelLayout failed: %v", err)
	}

	got, err := s.GetPanelLayout(ctx)
	if err != nil {
		t.Fatalf("GetPanelLayout failed: %v", err)
	}
	if got.Visible == nil || *got.Visible {
		t.Error("visible flag not updated")
	}
	if got.X != nil || got.Y != nil || got.Width != nil || got.Height != nil {
		t.Errorf("expected whole-row overwrite to drop geometry, got %+v", got)
	}
}

func TestGetPanelLayout_Empty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPanelLayout(context.Background())
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestButtonLayout_IndependentOfPanel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutButtonLayout(ctx, &ButtonLayout{X: ptr(5.0), Y: ptr(6.0)}); err != nil {
		t.Fatalf("PutButtonLayout failed: %v", err)
	}

	got, err := s.GetButtonLayout(ctx)
	if err != nil {
		t.Fatalf("GetButtonLayout failed: %v", err)
	}
	if *got.X != 5 || *got.Y != 6 {
		t.Errorf("position mismatch: %+v", got)
	}

	// The panel layout table is untouched
	if _, err := s.GetPanelLayout(ctx); err != ErrNotFound {
		t.Errorf("expected panel layout to stay empty, got %v", err)
	}
}

func TestImportLegacy_AllKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := LegacySnapshot{
		Content:      ptr("migrated note"),
		Layout:       []byte(`{"x":1,"y":2,"width":300,"height":400,"visible":true}`),
		ButtonLayout: []byte(`{"x":7,"y":8}`),
	}
	if err := s.ImportLegacy(ctx, snap); err != nil {
		t.Fatalf("ImportLegacy failed: %v", err)
	}

	note, err := s.GetNote(ctx)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if note.Content != "migrated note" {
		t.Errorf("content mismatch: got %q", note.Content)
	}

	layout, err := s.GetPanelLayout(ctx)
	if err != nil {
		t.Fatalf("GetPanelLayout failed: %v", err)
	}
	if *layout.X != 1 || *layout.Width != 300 {
		t.Errorf("panel layout mismatch: %+v", layout)
	}

	button, err := s.GetButtonLayout(ctx)
	if err != nil {
		t.Fatalf("GetButtonLayout failed: %v", err)
	}
	if *button.X != 7 || *button.Y != 8 {
		t.Errorf("button layout mismatch: %+v", button)
	}
}

func TestImportLegacy_MissingKeysCreateNoRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := LegacySnapshot{Content: ptr("only the note")}
	if err := s.ImportLegacy(ctx, snap); err != nil {
		t.Fatalf("ImportLegacy failed: %v", err)
	}

	if _, err := s.GetNote(ctx); err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if _, err := s.GetPanelLayout(ctx); err != ErrNotFound {
		t.Errorf("expected no panel layout record, got %v", err)
	}
	if _, err := s.GetButtonLayout(ctx); err != ErrNotFound {
		t.Errorf("expected no button layout record, got %v", err)
	}
}

func TestImportLegacy_Atomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The third value is malformed, so validation fails after the note and
	// panel layout writes were already issued inside the transaction.
	snap := LegacySnapshot{
		Content:      ptr("should not land"),
		Layout:       []byte(`{"x":1}`),
		ButtonLayout: []byte(`{not json`),
	}
	if err := s.ImportLegacy(ctx, snap); err == nil {
		t.Fatal("expected ImportLegacy to fail")
	}

	// Nothing from the failed import is visible
	if _, err := s.GetNote(ctx); err != ErrNotFound {
		t.Errorf("note leaked from rolled-back import: %v", err)
	}
	if _, err := s.GetPanelLayout(ctx); err != ErrNotFound {
		t.Errorf("panel layout leaked from rolled-back import: %v", err)
	}
	if _, err := s.GetButtonLayout(ctx); err != ErrNotFound {
		t.Errorf("button layout leaked from rolled-back import: %v", err)
	}
}

func TestImportLegacy_EmptySnapshot(t *testing.T) {
	s := newTestStore(t)

	if err := s.ImportLegacy(context.Background(), LegacySnapshot{}); err != nil {
		t.Fatalf("empty import should be a no-op, got %v", err)
	}
}

func TestLayoutJSON_OmitsAbsentFields(t *testing.T) {
	raw, err := json.Marshal(&PanelLayout{Visible: ptr(false)})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `{"visible":false}` {
		t.Errorf("unexpected encoding: %s", raw)
	}
}
