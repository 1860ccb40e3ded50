package memstore

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relojapp/offline-worker/internal/cache"
)

func TestStore_OpenIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()

	gen, err := store.Open(ctx, "reloj-v1.0.0")
	require.NoError(t, err)

	key := cache.Key(http.MethodGet, "/index.html")
	require.NoError(t, gen.Put(ctx, key, cache.Response{Status: 200, Body: []byte("hola")}))

	again, err := store.Open(ctx, "reloj-v1.0.0")
	require.NoError(t, err)

	resp, ok, err := again.Match(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hola", string(resp.Body))
}

func TestStore_NamesAndDrop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()

	for _, name := range []string{"reloj-v0.9.0", "reloj-v1.0.0"} {
		_, err := store.Open(ctx, name)
		require.NoError(t, err)
	}

	names, err := store.Names(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"reloj-v0.9.0", "reloj-v1.0.0"}, names)

	existed, err := store.Drop(ctx, "reloj-v0.9.0")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = store.Drop(ctx, "reloj-v0.9.0")
	require.NoError(t, err)
	require.False(t, existed)

	names, err = store.Names(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"reloj-v1.0.0"}, names)
}

func TestGeneration_MatchMissAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	gen, err := store.Open(ctx, "reloj-v1.0.0")
	require.NoError(t, err)

	_, ok, err := gen.Match(ctx, cache.Key(http.MethodGet, "/missing"))
	require.NoError(t, err)
	require.False(t, ok)

	key := cache.Key(http.MethodGet, "/app.js")
	require.NoError(t, gen.Put(ctx, key, cache.Response{Status: 200}))

	existed, err := gen.Delete(ctx, key)
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = gen.Delete(ctx, key)
	require.NoError(t, err)
	require.False(t, existed)
}

func TestGeneration_KeysAndCapture(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	gen, err := store.Open(ctx, "reloj-v1.0.0")
	require.NoError(t, err)

	require.NoError(t, gen.Put(ctx, "GET /", cache.Response{Status: 200}))
	require.NoError(t, gen.Put(ctx, "GET /index.html", cache.Response{Status: 200}))

	keys, err := gen.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"GET /", "GET /index.html"}, keys)

	resp, ok, err := gen.Match(ctx, "GET /")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, resp.CapturedAt.IsZero(), "capture time is stamped on put")
}

func TestGeneration_StoredResponseIsImmutable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	gen, err := store.Open(ctx, "reloj-v1.0.0")
	require.NoError(t, err)

	body := []byte("original")
	require.NoError(t, gen.Put(ctx, "GET /", cache.Response{Status: 200, Body: body}))

	// Mutating the caller's slice must not reach the stored snapshot.
	body[0] = 'X'

	resp, _, err := gen.Match(ctx, "GET /")
	require.NoError(t, err)
	require.Equal(t, "original", string(resp.Body))

	// Nor may mutating a matched copy corrupt the store.
	resp.Body[0] = 'Y'
	again, _, err := gen.Match(ctx, "GET /")
	require.NoError(t, err)
	require.Equal(t, "original", string(again.Body))
}
