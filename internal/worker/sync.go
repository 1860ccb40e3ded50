package worker

import (
	"context"
	"log/slog"

	"github.com/relojapp/offline-worker/internal/events"
)

// HandleSync is the background sync integration point. It resolves
// immediately; no synchronization is performed yet.
func (w *Worker) HandleSync(_ context.Context, ev events.Event) error {
	w.logger.Info("sync event received", slog.Any("data", ev.Data))
	return events.ErrNotImplemented
}

// HandlePeriodicSync mirrors HandleSync for periodic triggers.
func (w *Worker) HandlePeriodicSync(_ context.Context, ev events.Event) error {
	w.logger.Info("periodic sync event received", slog.Any("data", ev.Data))
	return events.ErrNotImplemented
}
