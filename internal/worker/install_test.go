package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relojapp/offline-worker/internal/cache"
	"github.com/relojapp/offline-worker/internal/cache/memstore"
	"github.com/relojapp/offline-worker/internal/events"
)

func TestInstall_EssentialFailureRejectsInstall(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, map[string]bool{"/manifest.json": true})
	store := memstore.New()
	w, _ := newTestWorker(t, testConfig(o.srv.URL), store)

	err := w.Install(context.Background(), events.Event{Kind: events.KindInstall})
	require.Error(t, err)
	require.Contains(t, err.Error(), "install rejected")
	require.Equal(t, StateFailed, w.State())
	require.Nil(t, w.Generation())
}

func TestInstall_BestEffortFailureTolerated(t *testing.T) {
	t.Parallel()

	// One icon fails; install must still resolve with the three essential
	// entries and every best-effort entry except the failed one.
	o := newTestOrigin(t, map[string]bool{"/icons/icon-512.png": true})
	store := memstore.New()
	cfg := testConfig(o.srv.URL)
	w, _ := newTestWorker(t, cfg, store)

	require.NoError(t, w.Install(context.Background(), events.Event{Kind: events.KindInstall}))
	require.Equal(t, StateInstalled, w.State())

	gen := w.Generation()
	require.NotNil(t, gen)

	for _, asset := range []string{"/", "/index.html", "/manifest.json", "/icons/icon-192.png"} {
		_, ok, err := gen.Match(context.Background(), cache.Key(http.MethodGet, asset))
		require.NoError(t, err)
		require.True(t, ok, "expected %s to be cached", asset)
	}

	_, ok, err := gen.Match(context.Background(), cache.Key(http.MethodGet, "/icons/icon-512.png"))
	require.NoError(t, err)
	require.False(t, ok, "failed best-effort asset must not be cached")
}

func TestInstall_ReleasesWaitingGate(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	w, _ := newTestWorker(t, testConfig(o.srv.URL), memstore.New())

	require.NoError(t, w.Install(context.Background(), events.Event{Kind: events.KindInstall}))

	select {
	case <-w.waiting:
	default:
		t.Fatal("install must release the waiting gate")
	}
}

func TestInstall_SoundCachedBestEffort(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	sound := newTestOrigin(t, nil)

	cfg := testConfig(o.srv.URL)
	cfg.SoundURL = sound.srv.URL + "/alarm.mp3"
	store := memstore.New()
	w, _ := newTestWorker(t, cfg, store)

	require.NoError(t, w.Install(context.Background(), events.Event{Kind: events.KindInstall}))

	_, ok, err := w.Generation().Match(context.Background(), cache.Key(http.MethodGet, cfg.SoundURL))
	require.NoError(t, err)
	require.True(t, ok, "sound asset should be precached")
}

func TestInstall_SoundFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	cfg := testConfig(o.srv.URL)
	cfg.SoundURL = "http://127.0.0.1:1/alarm.mp3"
	w, _ := newTestWorker(t, cfg, memstore.New())

	require.NoError(t, w.Install(context.Background(), events.Event{Kind: events.KindInstall}))
	require.Equal(t, StateInstalled, w.State())
}

// newOversizeOrigin serves a body larger than the test cache cap on
// /big.css and a small body everywhere else.
func newOversizeOrigin(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big.css" {
			_, _ = w.Write(bytes.Repeat([]byte("x"), 128))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstall_OversizeEssentialAssetRejectsInstall(t *testing.T) {
	t.Parallel()

	srv := newOversizeOrigin(t)

	cfg := testConfig(srv.URL)
	cfg.MaxCacheBodyBytes = 64
	cfg.EssentialAssets = []string{"/", "/big.css"}
	cfg.OptionalAssets = nil

	w, _ := newTestWorker(t, cfg, memstore.New())

	err := w.Install(context.Background(), events.Event{Kind: events.KindInstall})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache limit")
	require.Equal(t, StateFailed, w.State())
}

func TestInstall_OversizeBestEffortAssetIsSkippedNotTruncated(t *testing.T) {
	t.Parallel()

	srv := newOversizeOrigin(t)

	cfg := testConfig(srv.URL)
	cfg.MaxCacheBodyBytes = 64
	cfg.EssentialAssets = []string{"/", "/index.html"}
	cfg.OptionalAssets = []string{"/big.css"}

	store := memstore.New()
	w, _ := newTestWorker(t, cfg, store)

	require.NoError(t, w.Install(context.Background(), events.Event{Kind: events.KindInstall}))
	require.Equal(t, StateInstalled, w.State())

	// The oversize asset must be absent entirely, never stored half-read.
	_, ok, err := w.Generation().Match(context.Background(), cache.Key(http.MethodGet, "/big.css"))
	require.NoError(t, err)
	require.False(t, ok)

	resp, ok, err := w.Generation().Match(context.Background(), cache.Key(http.MethodGet, "/index.html"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ok", string(resp.Body))
}

func TestInstall_StoredSnapshotKeepsHeadersAndBody(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t, nil)
	w, _ := newTestWorker(t, testConfig(o.srv.URL), memstore.New())

	require.NoError(t, w.Install(context.Background(), events.Event{Kind: events.KindInstall}))

	resp, ok, err := w.Generation().Match(context.Background(), cache.Key(http.MethodGet, "/index.html"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, "content of /index.html", string(resp.Body))
	require.False(t, resp.CapturedAt.IsZero())
}
