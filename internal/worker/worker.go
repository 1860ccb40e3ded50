package worker

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/relojapp/offline-worker/internal/cache"
	"github.com/relojapp/offline-worker/internal/config"
	"github.com/relojapp/offline-worker/internal/events"
	"github.com/relojapp/offline-worker/internal/messaging"
	"github.com/relojapp/offline-worker/internal/origin"
)

// State tracks the worker lifecycle. Install always completes (or fails)
// before activation begins; activation completes before the interceptor is
// handed any traffic.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Worker owns the cache lifecycle: it populates the current generation on
// install, purges stale generations on activate, and hands the interceptor
// its view of the current generation.
type Worker struct {
	cfg         config.Config
	logger      *slog.Logger
	store       cache.Store
	origin      *origin.Target
	client      *http.Client
	broadcaster messaging.Broadcaster
	bus         *events.Bus

	state   atomic.Int32
	waiting chan struct{}
	skip    sync.Once
	gen     atomic.Pointer[generationRef]
}

type generationRef struct {
	gen cache.Generation
}

// New constructs a worker in the new state.
func New(cfg config.Config, logger *slog.Logger, store cache.Store, org *origin.Target, client *http.Client, broadcaster messaging.Broadcaster, bus *events.Bus) *Worker {
	return &Worker{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "worker")),
		store:       store,
		origin:      org,
		client:      client,
		broadcaster: broadcaster,
		bus:         bus,
		waiting:     make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.logger.Info("lifecycle state changed", slog.String("state", s.String()))
}

// SkipWaiting releases the waiting gate so activation proceeds immediately
// instead of waiting for the previous instance to be released. Idempotent;
// called both at the end of install and on a SKIP_WAITING message.
func (w *Worker) SkipWaiting() {
	w.skip.Do(func() {
		close(w.waiting)
	})
}

// Generation returns the current cache generation, or nil before install
// has opened one.
func (w *Worker) Generation() cache.Generation {
	ref := w.gen.Load()
	if ref == nil {
		return nil
	}
	return ref.gen
}
