// ABOUTME: Store interface and data types for notedock persistence
// ABOUTME: Defines the Note and layout singletons and the durable store contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Note is the single stored note. UpdatedAt is set on every save; nothing
// reads it yet, it is reserved for future conflict resolution.
type Note struct {
	Content   string
	UpdatedAt time.Time
}

// PanelLayout describes the overlay panel's stored geometry. Every field is
// optional at the storage boundary: a save may carry any subset, and a load
// returns only the fields that were stored. Positions and sizes are device
// pixels.
type PanelLayout struct {
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Visible   *bool    `json:"visible,omitempty"`
	Minimized *bool    `json:"minimized,omitempty"`
}

// IsZero reports whether no field is set.
func (l PanelLayout) IsZero() bool {
	return l.X == nil && l.Y == nil && l.Width == nil && l.Height == nil &&
		l.Visible == nil && l.Minimized == nil
}

// ButtonLayout describes the floating toggle button's stored position,
// independent of the panel.
type ButtonLayout struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// IsZero reports whether no field is set.
func (l ButtonLayout) IsZero() bool {
	return l.X == nil && l.Y == nil
}

// LegacySnapshot carries the values read from the legacy synchronized store.
// Nil fields were absent from the legacy read and must not create records.
// Layout values stay as the raw JSON the legacy store held so the migrator
// moves them verbatim.
type LegacySnapshot struct {
	Content      *string
	Layout       []byte
	ButtonLayout []byte
}

// IsEmpty reports whether the snapshot carries nothing to migrate.
func (s LegacySnapshot) IsEmpty() bool {
	return s.Content == nil && s.Layout == nil && s.ButtonLayout == nil
}

// Store is the durable local store owning the three singleton records.
// All puts are upserts against a fixed key. An upsert overwrites the whole
// row; it never merges fields with a previously stored record. Merging, if
// wanted, is the caller's job.
type Store interface {
	GetNote(ctx context.Context) (*Note, error)
	PutNote(ctx context.Context, content string) error

	GetPanelLayout(ctx context.Context) (*PanelLayout, error)
	PutPanelLayout(ctx context.Context, layout *PanelLayout) error

	GetButtonLayout(ctx context.Context) (*ButtonLayout, error)
	PutButtonLayout(ctx context.Context, layout *ButtonLayout) error

	// ImportLegacy writes every present snapshot field inside a single
	// transaction spanning all three tables. Either all present values
	// land or none do.
	ImportLegacy(ctx context.Context, snap LegacySnapshot) error

	// Close releases any resources held by the store.
	Close() error
}
