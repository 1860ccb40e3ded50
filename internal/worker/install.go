package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relojapp/offline-worker/internal/cache"
	"github.com/relojapp/offline-worker/internal/events"
)

const installConcurrency = 4

// Install opens the current cache generation and populates it with the
// configured asset list. Every essential asset must cache or the install as
// a whole fails; best-effort assets (including the external alarm sound)
// may fail individually without aborting. On success the waiting gate is
// released so the new version takes effect immediately.
func (w *Worker) Install(ctx context.Context, _ events.Event) error {
	w.setState(StateInstalling)

	gen, err := w.store.Open(ctx, w.cfg.CacheName())
	if err != nil {
		w.setState(StateFailed)
		return fmt.Errorf("open cache generation %q: %w", w.cfg.CacheName(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for _, asset := range w.cfg.EssentialAssets {
		g.Go(func() error {
			if err := w.cacheAsset(gctx, gen, asset); err != nil {
				return fmt.Errorf("essential asset %q: %w", asset, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.setState(StateFailed)
		return fmt.Errorf("install rejected: %w", err)
	}

	optional := append([]string(nil), w.cfg.OptionalAssets...)
	if w.cfg.SoundURL != "" {
		optional = append(optional, w.cfg.SoundURL)
	}
	for _, asset := range optional {
		if err := w.cacheAsset(ctx, gen, asset); err != nil {
			w.logger.Warn("best-effort asset skipped",
				slog.String("asset", asset),
				slog.String("error", err.Error()))
		}
	}

	w.gen.Store(&generationRef{gen: gen})
	w.setState(StateInstalled)
	w.logger.Info("install complete",
		slog.String("generation", w.cfg.CacheName()),
		slog.Int("essential", len(w.cfg.EssentialAssets)),
		slog.Int("best_effort", len(optional)))

	w.SkipWaiting()
	return nil
}

// cacheAsset fetches one asset and stores its snapshot under the GET
// identity. Relative paths resolve against the origin; absolute URLs are
// fetched as-is.
func (w *Worker) cacheAsset(ctx context.Context, gen cache.Generation, asset string) error {
	target, err := w.assetURL(asset)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}

	limit := w.cfg.MaxCacheBodyBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	// A truncated snapshot would be served as-is until the next version
	// bump, so an oversize asset must never reach the cache.
	if int64(len(body)) > limit {
		return fmt.Errorf("body exceeds cache limit of %d bytes", limit)
	}

	snapshot := cache.Response{
		Status:     resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		CapturedAt: time.Now().UTC(),
	}
	if err := gen.Put(ctx, cache.Key(http.MethodGet, asset), snapshot); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (w *Worker) assetURL(asset string) (string, error) {
	if strings.Contains(asset, "://") {
		if _, err := url.Parse(asset); err != nil {
			return "", fmt.Errorf("parse asset url %q: %w", asset, err)
		}
		return asset, nil
	}

	path := asset
	rawQuery := ""
	if idx := strings.IndexByte(asset, '?'); idx >= 0 {
		path, rawQuery = asset[:idx], asset[idx+1:]
	}
	return w.origin.Resolve(path, rawQuery).String(), nil
}
