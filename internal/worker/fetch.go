package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/relojapp/offline-worker/internal/cache"
	"github.com/relojapp/offline-worker/internal/proxy"
)

// Cache disposition values reported in the X-Offline-Cache header.
const (
	cacheHit      = "hit"
	cacheMiss     = "miss"
	cacheNetwork  = "network"
	cacheFallback = "fallback"
	cacheNone     = "none"
)

const headerOfflineCache = "X-Offline-Cache"

// Interceptor decides, per request, whether to serve from the cache, fetch
// from the network, or pass the request through untouched.
//
// Same-origin GETs are cache-first, the designated external alarm sound is
// network-first, and everything else bypasses the cache entirely.
type Interceptor struct {
	worker    *Worker
	logger    *slog.Logger
	forwarder *proxy.Forwarder
	sgroup    singleflight.Group
}

// NewInterceptor constructs the fetch interceptor for a worker.
func NewInterceptor(w *Worker, logger *slog.Logger) *Interceptor {
	return &Interceptor{
		worker: w,
		logger: logger.With(slog.String("component", "fetch")),
		forwarder: &proxy.Forwarder{
			Client:         w.client,
			Logger:         logger,
			RequestTimeout: w.cfg.RequestTimeout,
		},
	}
}

// ServeHTTP implements http.Handler.
func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		i.passThrough(w, r)
		return
	}

	switch {
	case i.isSoundRequest(r):
		i.serveNetworkFirst(w, r)
	case i.isSameOrigin(r):
		i.serveCacheFirst(w, r)
	default:
		// Foreign-origin traffic is none of our business.
		i.passThrough(w, r)
	}
}

// isSoundRequest matches the one external URL served network-first.
func (i *Interceptor) isSoundRequest(r *http.Request) bool {
	return r.URL.IsAbs() && r.URL.String() == i.worker.cfg.SoundURL
}

// isSameOrigin treats relative-form requests and absolute-form requests
// aimed at the origin host as the app's own traffic.
func (i *Interceptor) isSameOrigin(r *http.Request) bool {
	if !r.URL.IsAbs() {
		return true
	}
	return r.URL.Host == i.worker.origin.Host()
}

// serveCacheFirst checks the current generation before touching the
// network. A hit is served as-is with no freshness check. On a miss the
// origin is fetched (concurrent misses for one identity are deduplicated),
// a 200 is snapshotted into the cache off the response path, and the fresh
// response is served. A failed navigation fetch falls back to the cached
// entry page; other failures surface as 502.
func (i *Interceptor) serveCacheFirst(w http.ResponseWriter, r *http.Request) {
	gen := i.worker.Generation()
	identity := assetIdentity(r)
	key := cache.Key(http.MethodGet, identity)

	if gen != nil {
		stored, ok, err := gen.Match(r.Context(), key)
		if err != nil {
			i.logger.Warn("cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if ok {
			writeStored(w, stored, cacheHit)
			return
		}
	}

	fetched, err := i.fetchOnce(r.Context(), key, i.worker.origin.Resolve(r.URL.Path, r.URL.RawQuery).String())
	if err != nil {
		i.logger.Warn("origin fetch failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		if isNavigation(r) && gen != nil {
			fallbackKey := cache.Key(http.MethodGet, i.worker.cfg.NavigationFallback)
			if stored, ok, ferr := gen.Match(r.Context(), fallbackKey); ferr == nil && ok {
				writeStored(w, stored, cacheFallback)
				return
			}
		}
		respondError(w, http.StatusBadGateway, err)
		return
	}

	if gen != nil && fetched.cacheable {
		snapshot := fetched.resp
		i.worker.bus.Detach("cache write "+key, func(ctx context.Context) error {
			return gen.Put(ctx, key, snapshot)
		})
	}

	writeStored(w, fetched.resp, cacheMiss)
}

// serveNetworkFirst always tries the network, caching a fresh 200 for
// offline use. Offline it degrades to the cached copy, and with no cached
// copy it answers a synthetic empty not-found rather than failing.
func (i *Interceptor) serveNetworkFirst(w http.ResponseWriter, r *http.Request) {
	soundURL := i.worker.cfg.SoundURL
	key := cache.Key(http.MethodGet, soundURL)
	gen := i.worker.Generation()

	fetched, err := i.fetchOnce(r.Context(), key, soundURL)
	if err == nil {
		if gen != nil && fetched.cacheable {
			snapshot := fetched.resp
			i.worker.bus.Detach("cache write "+key, func(ctx context.Context) error {
				return gen.Put(ctx, key, snapshot)
			})
		}
		writeStored(w, fetched.resp, cacheNetwork)
		return
	}

	i.logger.Warn("sound fetch failed", slog.String("url", soundURL), slog.String("error", err.Error()))

	if gen != nil {
		if stored, ok, merr := gen.Match(r.Context(), key); merr == nil && ok {
			writeStored(w, stored, cacheFallback)
			return
		}
	}

	w.Header().Set(headerOfflineCache, cacheNone)
	w.WriteHeader(http.StatusNotFound)
}

type fetchResult struct {
	resp      cache.Response
	cacheable bool
}

// fetchOnce performs a network fetch, collapsing concurrent fetches for the
// same identity into one round-trip.
func (i *Interceptor) fetchOnce(ctx context.Context, key, target string) (fetchResult, error) {
	v, err, _ := i.sgroup.Do(key, func() (any, error) {
		return i.fetch(ctx, target)
	})
	if err != nil {
		return fetchResult{}, err
	}
	return v.(fetchResult), nil
}

func (i *Interceptor) fetch(ctx context.Context, target string) (fetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, i.worker.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetchResult{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := i.worker.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	limit := i.worker.cfg.MaxCacheBodyBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return fetchResult{}, fmt.Errorf("read body: %w", err)
	}

	oversize := int64(len(body)) > limit
	if oversize {
		body = body[:limit]
	}

	return fetchResult{
		resp: cache.Response{
			Status:     resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
			CapturedAt: time.Now().UTC(),
		},
		cacheable: resp.StatusCode == http.StatusOK && !oversize,
	}, nil
}

// passThrough hands the request to the forwarder with no cache
// involvement. Relative-form requests go to the origin; absolute-form
// requests go wherever they were already aimed.
func (i *Interceptor) passThrough(w http.ResponseWriter, r *http.Request) {
	target := r.URL
	if !r.URL.IsAbs() {
		target = i.worker.origin.Resolve(r.URL.Path, r.URL.RawQuery)
	}

	if err := i.forwarder.Do(w, r, target); err != nil {
		i.logger.Error("pass-through failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		respondError(w, http.StatusBadGateway, err)
	}
}

// assetIdentity is the cache identity for a same-origin request: its path
// plus query, host-independent so entries survive origin renames.
func assetIdentity(r *http.Request) string {
	identity := r.URL.Path
	if identity == "" {
		identity = "/"
	}
	if r.URL.RawQuery != "" {
		identity += "?" + r.URL.RawQuery
	}
	return identity
}

// isNavigation recognises full page loads as opposed to sub-resources.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeStored(w http.ResponseWriter, resp cache.Response, disposition string) {
	for k, vv := range resp.Header {
		// Recomputed from the body actually written.
		if k == "Content-Length" {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(headerOfflineCache, disposition)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
