package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"

	"github.com/relojapp/offline-worker/internal/cache"
	"github.com/relojapp/offline-worker/internal/cache/memstore"
	"github.com/relojapp/offline-worker/internal/cache/redisstore"
	"github.com/relojapp/offline-worker/internal/config"
	"github.com/relojapp/offline-worker/internal/events"
	"github.com/relojapp/offline-worker/internal/messaging"
	"github.com/relojapp/offline-worker/internal/notify"
	"github.com/relojapp/offline-worker/internal/origin"
	"github.com/relojapp/offline-worker/internal/server"
	"github.com/relojapp/offline-worker/internal/transport"
	"github.com/relojapp/offline-worker/internal/worker"
)

// App wires configuration, the cache store, the worker lifecycle, and the
// HTTP server together.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	bus       *events.Bus
	worker    *worker.Worker
	stopCache func() error
	httpSrv   *http.Server
}

// New creates a fully initialised application.
func New(cfg config.Config) (*App, error) {
	logger := newLogger(cfg)

	org, err := origin.Parse(cfg.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("setup origin: %w", err)
	}

	var (
		store       cache.Store
		broadcaster messaging.Broadcaster
		stopCache   func() error
	)
	if cfg.RedisURL != "" {
		redisStore, err := redisstore.New(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("setup redis: %w", err)
		}
		store = redisStore
		broadcaster = messaging.NewRedisBroadcaster(redisStore.Client(), cfg.BroadcastChannel)
		stopCache = redisStore.Close
	} else {
		logger.Info("no redis configured, running with in-memory cache store")
		store = memstore.New()
		broadcaster = messaging.NoopBroadcaster{}
	}

	bus := events.New(logger)
	httpClient := transport.NewHTTPClient(cfg)
	wrk := worker.New(cfg, logger, store, org, httpClient, broadcaster, bus)
	interceptor := worker.NewInterceptor(wrk, logger)
	messages := messaging.NewHandler(cfg.Version, len(cfg.AllAssets()), wrk.SkipWaiting, logger)
	notifier := notify.New(clockwork.NewRealClock(), broadcaster, logger)

	registerHandlers(bus, wrk, notifier, logger)

	handler := server.New(cfg, logger, bus, wrk, interceptor, messages, notifier)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           instrumentHandler(handler, logger, cfg.Version),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout + cfg.TransportTimeout,
		WriteTimeout:      cfg.TransportTimeout + cfg.RequestTimeout,
		IdleTimeout:       cfg.IdleConnTimeout,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		bus:       bus,
		worker:    wrk,
		stopCache: stopCache,
		httpSrv:   httpSrv,
	}, nil
}

// registerHandlers binds every named handler to its event kind. This is
// the single place the dispatch table is built.
func registerHandlers(bus *events.Bus, wrk *worker.Worker, notifier *notify.Notifier, logger *slog.Logger) {
	bus.Register(events.KindInstall, wrk.Install)
	bus.Register(events.KindActivate, wrk.Activate)
	bus.Register(events.KindSync, wrk.HandleSync)
	bus.Register(events.KindPeriodicSync, wrk.HandlePeriodicSync)
	bus.Register(events.KindPush, notifier.HandlePush)
	bus.Register(events.KindNotificationClick, notifier.HandleClick)

	logEvent := func(ctx context.Context, ev events.Event) error {
		logger.Info("event observed", slog.String("kind", string(ev.Kind)), slog.Any("data", ev.Data))
		return nil
	}
	bus.Register(events.KindMessage, logEvent)
	bus.Register(events.KindAppInstalled, logEvent)
	bus.Register(events.KindControllerChange, logEvent)
}

// Run installs and activates the worker, then serves until the context is
// cancelled. An essential-asset failure during install aborts startup.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		a.bus.Wait()
		if a.stopCache != nil {
			if err := a.stopCache(); err != nil {
				a.logger.Warn("cache close failed", slog.String("error", err.Error()))
			}
		}
	}()

	if err := a.bus.Dispatch(ctx, events.Event{Kind: events.KindInstall}); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := a.bus.Dispatch(ctx, events.Event{Kind: events.KindActivate}); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("offline worker serving",
			slog.String("addr", a.cfg.ListenAddr),
			slog.String("generation", a.cfg.CacheName()))
		err := a.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.PrettyLogs {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func instrumentHandler(next http.Handler, logger *slog.Logger, version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("X-Worker-Version", version)
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		logger.Debug("handled request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("duration", dur))
	})
}
