package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind names an event the worker reacts to. The set mirrors the lifecycle
// and auxiliary events delivered by the hosting page.
type Kind string

const (
	KindInstall           Kind = "install"
	KindActivate          Kind = "activate"
	KindSync              Kind = "sync"
	KindPeriodicSync      Kind = "periodicsync"
	KindPush              Kind = "push"
	KindNotificationClick Kind = "notificationclick"
	KindMessage           Kind = "message"
	KindAppInstalled      Kind = "appinstalled"
	KindControllerChange  Kind = "controllerchange"
)

// ErrNotImplemented marks a handler that is intentionally inert: it is
// registered, dispatchable, and does nothing yet. The bus logs it and does
// not treat it as a dispatch failure.
var ErrNotImplemented = errors.New("handler not implemented")

// Event carries a kind and an optional payload to its handlers.
type Event struct {
	Kind Kind
	Data any
}

// HandlerFunc reacts to a single event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Bus is a process-wide dispatch table mapping event kinds to handlers.
// Registration happens once at startup; dispatch runs handlers in
// registration order. Detached tasks cover fire-and-forget work whose
// failures must still be logged.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]HandlerFunc
	logger   *slog.Logger
	detached sync.WaitGroup
}

// New constructs an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]HandlerFunc),
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Register binds a handler to an event kind.
func (b *Bus) Register(kind Kind, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Dispatch runs every handler registered for the event's kind. The first
// hard failure stops the chain and is returned. Panics are recovered and
// logged so a misbehaving handler cannot take down the process; handlers
// returning ErrNotImplemented are logged as inert and do not fail the
// dispatch.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := b.handlers[ev.Kind]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handler registered", slog.String("kind", string(ev.Kind)))
		return nil
	}

	for _, h := range handlers {
		err := b.invoke(ctx, ev, h)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNotImplemented) {
			b.logger.Info("event handled by inert stub", slog.String("kind", string(ev.Kind)))
			continue
		}
		return fmt.Errorf("dispatch %s: %w", ev.Kind, err)
	}

	return nil
}

func (b *Bus) invoke(ctx context.Context, ev Event, h HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				slog.String("kind", string(ev.Kind)),
				slog.Any("panic", r))
			err = fmt.Errorf("handler for %s panicked: %v", ev.Kind, r)
		}
	}()
	return h(ctx, ev)
}

// Detach runs fn in the background, off the critical path of whatever
// triggered it. The error is logged rather than dropped, so a failed
// background task never surfaces as an unhandled rejection.
func (b *Bus) Detach(name string, fn func(ctx context.Context) error) {
	b.detached.Add(1)
	go func() {
		defer b.detached.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("detached task panicked", slog.String("task", name), slog.Any("panic", r))
			}
		}()
		if err := fn(context.Background()); err != nil {
			b.logger.Warn("detached task failed", slog.String("task", name), slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until all detached tasks have settled.
func (b *Bus) Wait() {
	b.detached.Wait()
}
