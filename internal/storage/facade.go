// ABOUTME: Public storage facade consumed by the overlay UI layer
// ABOUTME: Dispatches to direct store access or broker delegation with a page-local fallback

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/notedock/notedock/internal/broker"
	"github.com/notedock/notedock/internal/legacy"
	"github.com/notedock/notedock/internal/localkv"
	"github.com/notedock/notedock/internal/migrate"
	"github.com/notedock/notedock/internal/origin"
	"github.com/notedock/notedock/internal/store"
)

// Options configures a Facade.
type Options struct {
	// Env is the detected execution context deciding dispatch.
	Env origin.Context

	// DBPath locates the durable store. Used only in privileged contexts.
	DBPath string

	// Legacy is the old synchronized store to migrate from. May be nil in
	// delegated contexts, where migration never runs.
	Legacy legacy.Store

	// Fallback is the page-local store shadowing data when the durable
	// paths fail. Required.
	Fallback *localkv.Store

	Logger *slog.Logger

	// openStore is swappable for tests.
	openStore func(path string) (store.Store, error)
}

// Facade is the single public surface the UI layer depends on. Every
// operation resolves with a best-effort value and never surfaces an error;
// failures degrade through the fallback ladder and are visible only in logs.
type Facade struct {
	env      origin.Context
	dbPath   string
	legacy   legacy.Store
	fallback *localkv.Store
	logger   *slog.Logger
	open     func(path string) (store.Store, error)

	mu     sync.Mutex
	flight *initFlight
	st     store.Store
	client *broker.Client
}

// initFlight is the shared handle for one in-flight initialization.
// Concurrent callers wait on the same flight; a failed flight is discarded
// so the next call starts a fresh one. A plain boolean cannot express
// the difference between never tried, in progress, and failed-retry.
type initFlight struct {
	done chan struct{}
	err  error
}

// New creates a Facade.
func New(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := opts.openStore
	if open == nil {
		open = func(path string) (store.Store, error) { return store.Open(path) }
	}
	return &Facade{
		env:      opts.Env,
		dbPath:   opts.DBPath,
		legacy:   opts.Legacy,
		fallback: opts.Fallback,
		logger:   logger.With("component", "storage"),
		open:     open,
	}
}

// Close releases the broker connection and the store, if held.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		f.client.Close()
		f.client = nil
	}
	if f.st != nil {
		err := f.st.Close()
		f.st = nil
		return err
	}
	return nil
}

// LoadNote returns the stored note text, the fallback copy, or "".
func (f *Facade) LoadNote(ctx context.Context) string {
	content, err := f.loadNoteDurable(ctx)
	if err == nil {
		return content
	}
	f.logger.Warn("durable note load failed, using fallback", "error", err)

	v, err := f.fallback.Get(localkv.KeyNote)
	if err != nil {
		if !errors.Is(err, localkv.ErrNotFound) {
			f.logger.Debug("fallback note load failed", "error", err)
		}
		return ""
	}
	return v
}

// SaveNote stores the note text, best effort. On durable failure the value
// is written through to the page-local fallback only.
func (f *Facade) SaveNote(ctx context.Context, content string) {
	err := f.saveNoteDurable(ctx, content)
	if err == nil {
		return
	}
	f.logger.Warn("durable note save failed, using fallback", "error", err)

	if err := f.fallback.Set(localkv.KeyNote, content); err != nil {
		f.logger.Debug("fallback note save failed", "error", err)
	}
}

// LoadLayout returns the stored panel layout; a zero layout when nothing is
// stored or every path fails.
func (f *Facade) LoadLayout(ctx context.Context) store.PanelLayout {
	layout, err := f.loadLayoutDurable(ctx)
	if err == nil {
		return *layout
	}
	f.logger.Warn("durable layout load failed, using fallback", "error", err)

	var fb store.PanelLayout
	f.loadFallbackJSON(localkv.KeyLayout, &fb)
	return fb
}

// SaveLayout stores a partial panel layout. The facade merges the partial
// over the currently stored record before writing, so fields omitted from
// the partial survive; the layers below remain whole-row upserts.
func (f *Facade) SaveLayout(ctx context.Context, partial store.PanelLayout) {
	merged := mergePanelLayout(f.LoadLayout(ctx), partial)

	err := f.saveLayoutDurable(ctx, &merged)
	if err == nil {
		return
	}
	f.logger.Warn("durable layout save failed, using fallback", "error", err)

	f.saveFallbackJSON(localkv.KeyLayout, merged)
}

// LoadButtonLayout returns the stored floating button layout; zero when
// nothing is stored or every path fails.
func (f *Facade) LoadButtonLayout(ctx context.Context) store.ButtonLayout {
	layout, err := f.loadButtonLayoutDurable(ctx)
	if err == nil {
		return *layout
	}
	f.logger.Warn("durable button layout load failed, using fallback", "error", err)

	var fb store.ButtonLayout
	f.loadFallbackJSON(localkv.KeyButtonLayout, &fb)
	return fb
}

// SaveButtonLayout stores a partial button layout with the same merge
// policy as SaveLayout.
func (f *Facade) SaveButtonLayout(ctx context.Context, partial store.ButtonLayout) {
	merged := mergeButtonLayout(f.LoadButtonLayout(ctx), partial)

	err := f.saveButtonLayoutDurable(ctx, &merged)
	if err == nil {
		return
	}
	f.logger.Warn("durable button layout save failed, using fallback", "error", err)

	f.saveFallbackJSON(localkv.KeyButtonLayout, merged)
}

// --- durable dispatch -------------------------------------------------

func (f *Facade) loadNoteDurable(ctx context.Context) (string, error) {
	if f.env.Privileged() {
		st, err := f.ensureInit(ctx)
		if err != nil {
			return "", err
		}
		note, err := st.GetNote(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return note.Content, nil
	}

	c, err := f.brokerClient()
	if err != nil {
		return "", err
	}
	content, err := c.GetNote(ctx)
	if err != nil {
		f.dropClientOnTransportError(c, err)
		return "", err
	}
	return content, nil
}

func (f *Facade) saveNoteDurable(ctx context.Context, content string) error {
	if f.env.Privileged() {
		st, err := f.ensureInit(ctx)
		if err != nil {
			return err
		}
		return st.PutNote(ctx, content)
	}

	c, err := f.brokerClient()
	if err != nil {
		return err
	}
	if err := c.SaveNote(ctx, content); err != nil {
		f.dropClientOnTransportError(c, err)
		return err
	}
	return nil
}

func (f *Facade) loadLayoutDurable(ctx context.Context) (*store.PanelLayout, error) {
	if f.env.Privileged() {
		st, err := f.ensureInit(ctx)
		if err != nil {
			return nil, err
		}
		layout, err := st.GetPanelLayout(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return &store.PanelLayout{}, nil
		}
		if err != nil {
			return nil, err
		}
		return layout, nil
	}

	c, err := f.brokerClient()
	if err != nil {
		return nil, err
	}
	layout, err := c.GetLayout(ctx)
	if err != nil {
		f.dropClientOnTransportError(c, err)
		return nil, err
	}
	return layout, nil
}

func (f *Facade) saveLayoutDurable(ctx context.Context, layout *store.PanelLayout) error {
	if f.env.Privileged() {
		st, err := f.ensureInit(ctx)
		if err != nil {
			return err
		}
		return st.PutPanelLayout(ctx, layout)
	}

	c, err := f.brokerClient()
	if err != nil {
		return err
	}
	if err := c.SaveLayout(ctx, layout); err != nil {
		f.dropClientOnTransportError(c, err)
		return err
	}
	return nil
}

func (f *Facade) loadButtonLayoutDurable(ctx context.Context) (*store.ButtonLayout, error) {
	if f.env.Privileged() {
		st, err := f.ensureInit(ctx)
		if err != nil {
			return nil, err
		}
		layout, err := st.GetButtonLayout(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return &store.ButtonLayout{}, nil
		}
		if err != nil {
			return nil, err
		}
		return layout, nil
	}

	c, err := f.brokerClient()
	if err != nil {
		return nil, err
	}
	layout, err := c.GetButtonLayout(ctx)
	if err != nil {
		f.dropClientOnTransportError(c, err)
		return nil, err
	}
	return layout, nil
}

func (f *Facade) saveButtonLayoutDurable(ctx context.Context, layout *store.ButtonLayout) error {
	if f.env.Privileged() {
		st, err := f.ensureInit(ctx)
		if err != nil {
			return err
		}
		return st.PutButtonLayout(ctx, layout)
	}

	c, err := f.brokerClient()
	if err != nil {
		return err
	}
	if err := c.SaveButtonLayout(ctx, layout); err != nil {
		f.dropClientOnTransportError(c, err)
		return err
	}
	return nil
}

// --- initialization ---------------------------------------------------

// ensureInit opens the store and runs the legacy migration exactly once,
// sharing one in-flight initialization among concurrent callers. A failed
// initialization resets the shared handle so a later call retries instead
// of wedging the facade permanently.
func (f *Facade) ensureInit(ctx context.Context) (store.Store, error) {
	f.mu.Lock()
	if f.st != nil {
		st := f.st
		f.mu.Unlock()
		return st, nil
	}
	if f.flight == nil {
		fl := &initFlight{done: make(chan struct{})}
		f.flight = fl
		go f.runInit(fl)
	}
	fl := f.flight
	f.mu.Unlock()

	select {
	case <-fl.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fl.err != nil {
		return nil, fl.err
	}

	f.mu.Lock()
	st := f.st
	f.mu.Unlock()
	if st == nil {
		// The store was closed between init and here.
		return nil, errors.New("store is closed")
	}
	return st, nil
}

// runInit performs the one-time open + migration. Migration failures are
// swallowed by design: the flag stays unset, so the next process start
// retries, and this process continues with an effectively empty store.
func (f *Facade) runInit(fl *initFlight) {
	st, err := f.open(f.dbPath)
	if err == nil && f.legacy != nil {
		mig := migrate.New(f.legacy, st, f.fallback, f.logger)
		if merr := mig.Run(context.Background()); merr != nil {
			f.logger.Warn("legacy migration failed, continuing with empty store", "error", merr)
		}
	}

	f.mu.Lock()
	if err == nil {
		f.st = st
	}
	// Discard the flight either way: on success st short-circuits future
	// calls, on failure the nil flight lets them retry.
	f.flight = nil
	f.mu.Unlock()

	fl.err = err
	close(fl.done)
}

// --- delegation plumbing ----------------------------------------------

// brokerClient returns the shared channel to the privileged side, dialing
// it on first use.
func (f *Facade) brokerClient() (*broker.Client, error) {
	if !f.env.Valid() {
		return nil, errors.New("runtime environment is not connectable")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	c, err := broker.Dial(f.env.SocketPath)
	if err != nil {
		return nil, err
	}
	f.client = c
	return c, nil
}

// dropClientOnTransportError discards the shared channel after a transport
// failure so the next call redials. A RemoteError means the channel itself
// is healthy and is kept.
func (f *Facade) dropClientOnTransportError(c *broker.Client, err error) {
	var remote *broker.RemoteError
	if errors.As(err, &remote) {
		return
	}
	f.mu.Lock()
	if f.client == c {
		f.client = nil
	}
	f.mu.Unlock()
	c.Close()
}

// --- fallback helpers -------------------------------------------------

// loadFallbackJSON decodes the fallback value under key into v, leaving v
// untouched when the key is absent or unreadable.
func (f *Facade) loadFallbackJSON(key string, v any) {
	raw, err := f.fallback.Get(key)
	if err != nil {
		if !errors.Is(err, localkv.ErrNotFound) {
			f.logger.Debug("fallback load failed", "key", key, "error", err)
		}
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		f.logger.Debug("fallback value is malformed", "key", key, "error", err)
	}
}

// saveFallbackJSON encodes v into the fallback under key, swallowing
// failures.
func (f *Facade) saveFallbackJSON(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		f.logger.Debug("fallback encode failed", "key", key, "error", err)
		return
	}
	if err := f.fallback.Set(key, string(raw)); err != nil {
		f.logger.Debug("fallback save failed", "key", key, "error", err)
	}
}

// --- merge policy -----------------------------------------------------

// mergePanelLayout overlays the set fields of partial onto base. This is
// the facade's deliberate answer to the partial-save ambiguity: without it,
// saving {visible:false} alone would erase previously recorded geometry,
// because every layer below overwrites the whole row.
func mergePanelLayout(base, partial store.PanelLayout) store.PanelLayout {
	if partial.X != nil {
		base.X = partial.X
	}
	if partial.Y != nil {
		base.Y = partial.Y
	}
	if partial.Width != nil {
		base.Width = partial.Width
	}
	if partial.Height != nil {
		base.Height = partial.Height
	}
	if partial.Visible != nil {
		base.Visible = partial.Visible
	}
	if partial.Minimized != nil {
		base.Minimized = partial.Minimized
	}
	return base
}

// mergeButtonLayout overlays the set fields of partial onto base.
func mergeButtonLayout(base, partial store.ButtonLayout) store.ButtonLayout {
	if partial.X != nil {
		base.X = partial.X
	}
	if partial.Y != nil {
		base.Y = partial.Y
	}
	return base
}
