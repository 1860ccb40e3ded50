package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relojapp/offline-worker/internal/cache/memstore"
	"github.com/relojapp/offline-worker/internal/events"
)

func TestActivate_DropsOnlyStalePrefixedGenerations(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	store := memstore.New()

	ctx := context.Background()
	for _, name := range []string{"reloj-v0.9.0", "reloj-v1.0.0", "other-app-v1"} {
		_, err := store.Open(ctx, name)
		require.NoError(t, err)
	}

	w, _ := newTestWorker(t, testConfig(o.srv.URL), store)
	w.SkipWaiting()

	require.NoError(t, w.Activate(ctx, events.Event{Kind: events.KindActivate}))
	require.Equal(t, StateActive, w.State())

	names, err := store.Names(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"reloj-v1.0.0", "other-app-v1"}, names)
}

func TestActivate_WaitsForGate(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	w, _ := newTestWorker(t, testConfig(o.srv.URL), memstore.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Gate never released and the context is cancelled: activation must
	// return instead of blocking forever.
	err := w.Activate(ctx, events.Event{Kind: events.KindActivate})
	require.ErrorIs(t, err, context.Canceled)
}

func TestInstallThenActivate_FullLifecycle(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	store := memstore.New()

	ctx := context.Background()
	_, err := store.Open(ctx, "reloj-v0.9.0")
	require.NoError(t, err)

	w, bus := newTestWorker(t, testConfig(o.srv.URL), store)
	bus.Register(events.KindInstall, w.Install)
	bus.Register(events.KindActivate, w.Activate)

	require.NoError(t, bus.Dispatch(ctx, events.Event{Kind: events.KindInstall}))
	require.NoError(t, bus.Dispatch(ctx, events.Event{Kind: events.KindActivate}))
	require.Equal(t, StateActive, w.State())

	names, err := store.Names(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"reloj-v1.0.0"}, names)
}
