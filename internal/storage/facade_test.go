// ABOUTME: Tests for the storage facade's dispatch, init, merge, and fallback behavior
// ABOUTME: Covers privileged and delegated paths plus degraded page-local operation

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedock/notedock/internal/broker"
	"github.com/notedock/notedock/internal/legacy"
	"github.com/notedock/notedock/internal/localkv"
	"github.com/notedock/notedock/internal/origin"
	"github.com/notedock/notedock/internal/store"
)

func ptr[T any](v T) *T { return &v }

var privilegedEnv = origin.Context{Origin: "notedock://daemon"}

// countingStore wraps a real store and counts the calls the facade is
// supposed to make at most once.
type countingStore struct {
	store.Store
	imports atomic.Int64
	puts    atomic.Int64
}

func (c *countingStore) ImportLegacy(ctx context.Context, snap store.LegacySnapshot) error {
	c.imports.Add(1)
	return c.Store.ImportLegacy(ctx, snap)
}

func (c *countingStore) PutPanelLayout(ctx context.Context, layout *store.PanelLayout) error {
	c.puts.Add(1)
	return c.Store.PutPanelLayout(ctx, layout)
}

type facadeFixture struct {
	facade   *Facade
	fallback *localkv.Store
	counting *countingStore
	opens    *atomic.Int64
}

// newPrivilegedFacade wires a facade the way the daemon does, with a real
// SQLite store behind a counting wrapper and an instrumented opener.
func newPrivilegedFacade(t *testing.T, legacyStore legacy.Store) *facadeFixture {
	t.Helper()

	dir := t.TempDir()
	fallback := localkv.New(filepath.Join(dir, "fallback.json"))
	if legacyStore == nil {
		legacyStore = legacy.NewFileStore(filepath.Join(dir, "legacy.json"))
	}

	counting := &countingStore{}
	var opens atomic.Int64
	f := New(Options{
		Env:      privilegedEnv,
		DBPath:   filepath.Join(dir, "notes.db"),
		Legacy:   legacyStore,
		Fallback: fallback,
		openStore: func(path string) (store.Store, error) {
			opens.Add(1)
			s, err := store.Open(path)
			if err != nil {
				return nil, err
			}
			counting.Store = s
			return counting, nil
		},
	})
	t.Cleanup(func() { f.Close() })

	return &facadeFixture{facade: f, fallback: fallback, counting: counting, opens: &opens}
}

func TestFacade_NoteRoundTrip(t *testing.T) {
	fx := newPrivilegedFacade(t, nil)
	ctx := context.Background()

	assert.Equal(t, "", fx.facade.LoadNote(ctx))

	fx.facade.SaveNote(ctx, "remember the milk")
	assert.Equal(t, "remember the milk", fx.facade.LoadNote(ctx))

	// The durable path worked, so nothing leaked into the fallback.
	_, err := fx.fallback.Get(localkv.KeyNote)
	assert.ErrorIs(t, err, localkv.ErrNotFound)
}

func TestFacade_DefaultsWhenEmpty(t *testing.T) {
	fx := newPrivilegedFacade(t, nil)
	ctx := context.Background()

	assert.Equal(t, "", fx.facade.LoadNote(ctx))
	assert.True(t, fx.facade.LoadLayout(ctx).IsZero())

	button := fx.facade.LoadButtonLayout(ctx)
	assert.Nil(t, button.X)
	assert.Nil(t, button.Y)
}

// Concurrent first calls share one initialization: one store open, one
// migration pass, regardless of how many operations race.
func TestFacade_ConcurrentInit(t *testing.T) {
	dir := t.TempDir()
	legacyStore := legacy.NewFileStore(filepath.Join(dir, "legacy.json"))
	ctx := context.Background()
	require.NoError(t, legacyStore.Set(ctx, legacy.KeyContent, json.RawMessage(`"carried over"`)))

	fx := newPrivilegedFacade(t, legacyStore)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				fx.facade.LoadNote(ctx)
			} else {
				fx.facade.SaveLayout(ctx, store.PanelLayout{X: ptr(float64(i))})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), fx.opens.Load())
	assert.Equal(t, int64(1), fx.counting.imports.Load())
	assert.Equal(t, "carried over", fx.facade.LoadNote(ctx))
}

// A failed initialization does not wedge the facade: the shared handle is
// discarded and the next call tries again.
func TestFacade_InitFailureRetries(t *testing.T) {
	dir := t.TempDir()
	fallback := localkv.New(filepath.Join(dir, "fallback.json"))

	var opens atomic.Int64
	f := New(Options{
		Env:      privilegedEnv,
		DBPath:   filepath.Join(dir, "notes.db"),
		Legacy:   legacy.NewFileStore(filepath.Join(dir, "legacy.json")),
		Fallback: fallback,
		openStore: func(path string) (store.Store, error) {
			if opens.Add(1) == 1 {
				return nil, errors.New("disk not ready")
			}
			return store.Open(path)
		},
	})
	t.Cleanup(func() { f.Close() })
	ctx := context.Background()

	// First call degrades to the fallback.
	f.SaveNote(ctx, "held locally")
	v, err := fallback.Get(localkv.KeyNote)
	require.NoError(t, err)
	assert.Equal(t, "held locally", v)

	// Second call retries the open and reads the (empty) durable store.
	// Values stranded in the fallback are not reconciled back.
	assert.Equal(t, "", f.LoadNote(ctx))
	assert.Equal(t, int64(2), opens.Load())
}

func TestFacade_FallbackWhenStoreUnopenable(t *testing.T) {
	dir := t.TempDir()
	fallback := localkv.New(filepath.Join(dir, "fallback.json"))

	f := New(Options{
		Env:      privilegedEnv,
		DBPath:   filepath.Join(dir, "notes.db"),
		Fallback: fallback,
		openStore: func(string) (store.Store, error) {
			return nil, errors.New("permanently broken")
		},
	})
	t.Cleanup(func() { f.Close() })
	ctx := context.Background()

	f.SaveNote(ctx, "survives locally")
	assert.Equal(t, "survives locally", f.LoadNote(ctx))

	f.SaveLayout(ctx, store.PanelLayout{X: ptr(7.0)})
	f.SaveLayout(ctx, store.PanelLayout{Visible: ptr(false)})

	// Merge policy applies on the fallback path too.
	layout := f.LoadLayout(ctx)
	require.NotNil(t, layout.X)
	assert.Equal(t, 7.0, *layout.X)
	require.NotNil(t, layout.Visible)
	assert.False(t, *layout.Visible)
}

// Saving a partial layout keeps previously stored fields: the facade reads,
// merges, and writes the whole row. The store itself stays overwrite-only.
func TestFacade_PartialLayoutSaveMerges(t *testing.T) {
	fx := newPrivilegedFacade(t, nil)
	ctx := context.Background()

	fx.facade.SaveLayout(ctx, store.PanelLayout{
		X:       ptr(10.0),
		Y:       ptr(20.0),
		Width:   ptr(300.0),
		Height:  ptr(400.0),
		Visible: ptr(true),
	})
	fx.facade.SaveLayout(ctx, store.PanelLayout{Visible: ptr(false)})

	layout := fx.facade.LoadLayout(ctx)
	require.NotNil(t, layout.X)
	assert.Equal(t, 10.0, *layout.X)
	require.NotNil(t, layout.Width)
	assert.Equal(t, 300.0, *layout.Width)
	require.NotNil(t, layout.Visible)
	assert.False(t, *layout.Visible)
}

func TestFacade_ButtonLayoutMerges(t *testing.T) {
	fx := newPrivilegedFacade(t, nil)
	ctx := context.Background()

	fx.facade.SaveButtonLayout(ctx, store.ButtonLayout{X: ptr(40.0)})
	fx.facade.SaveButtonLayout(ctx, store.ButtonLayout{Y: ptr(80.0)})

	button := fx.facade.LoadButtonLayout(ctx)
	require.NotNil(t, button.X)
	assert.Equal(t, 40.0, *button.X)
	require.NotNil(t, button.Y)
	assert.Equal(t, 80.0, *button.Y)
}

// startBroker runs a privileged-side broker over a counting store and
// returns its socket path. Socket paths live under os.MkdirTemp to stay
// inside the unix socket path length limit.
func startBroker(t *testing.T, counting *countingStore) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "ndk")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "b.sock")

	backing, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backing.Close() })
	counting.Store = backing

	srv := broker.NewServer(broker.NewHandler(counting, nil), nil)
	require.NoError(t, srv.Listen(sock))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	return sock
}

// A delegated facade never touches the store directly: one save dispatches
// exactly one save message across the channel.
func TestFacade_DelegatedDispatch(t *testing.T) {
	counting := &countingStore{}
	sock := startBroker(t, counting)
	dir := t.TempDir()

	f := New(Options{
		Env:      origin.Context{Origin: "", SocketPath: sock},
		Fallback: localkv.New(filepath.Join(dir, "fallback.json")),
		openStore: func(string) (store.Store, error) {
			t.Error("delegated facade opened the store directly")
			return nil, errors.New("forbidden")
		},
	})
	t.Cleanup(func() { f.Close() })
	ctx := context.Background()

	f.SaveLayout(ctx, store.PanelLayout{Visible: ptr(false)})

	assert.Equal(t, int64(1), counting.puts.Load())

	layout := f.LoadLayout(ctx)
	require.NotNil(t, layout.Visible)
	assert.False(t, *layout.Visible)
	assert.Nil(t, layout.X)
}

func TestFacade_DelegatedNoteRoundTrip(t *testing.T) {
	sock := startBroker(t, &countingStore{})
	dir := t.TempDir()

	f := New(Options{
		Env:      origin.Context{SocketPath: sock},
		Fallback: localkv.New(filepath.Join(dir, "fallback.json")),
	})
	t.Cleanup(func() { f.Close() })
	ctx := context.Background()

	assert.Equal(t, "", f.LoadNote(ctx))
	f.SaveNote(ctx, "via the channel")
	assert.Equal(t, "via the channel", f.LoadNote(ctx))
}

// With the daemon gone the runtime is not connectable; the facade degrades
// straight to the page-local fallback without dialing anything.
func TestFacade_DelegatedRuntimeGone(t *testing.T) {
	dir := t.TempDir()
	fallback := localkv.New(filepath.Join(dir, "fallback.json"))

	f := New(Options{
		Env:      origin.Context{SocketPath: filepath.Join(dir, "no-such.sock")},
		Fallback: fallback,
	})
	t.Cleanup(func() { f.Close() })
	ctx := context.Background()

	f.SaveNote(ctx, "offline note")
	assert.Equal(t, "offline note", f.LoadNote(ctx))

	v, err := fallback.Get(localkv.KeyNote)
	require.NoError(t, err)
	assert.Equal(t, "offline note", v)
}

// When even the fallback cannot be written, operations stay silent: loads
// return defaults and saves are no-ops.
func TestFacade_EveryLayerFailing(t *testing.T) {
	dir := t.TempDir()

	// A fallback whose backing path sits under a regular file cannot save.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	fallback := localkv.New(filepath.Join(blocker, "fallback.json"))

	f := New(Options{
		Env:      privilegedEnv,
		DBPath:   filepath.Join(dir, "notes.db"),
		Fallback: fallback,
		openStore: func(string) (store.Store, error) {
			return nil, errors.New("no store")
		},
	})
	t.Cleanup(func() { f.Close() })
	ctx := context.Background()

	f.SaveNote(ctx, "lost")
	assert.Equal(t, "", f.LoadNote(ctx))
	assert.True(t, f.LoadLayout(ctx).IsZero())
}
