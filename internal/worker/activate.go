package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relojapp/offline-worker/internal/events"
	"github.com/relojapp/offline-worker/internal/messaging"
)

// Activate purges every stale generation carrying this app's prefix, then
// claims the open pages by broadcasting SW_UPDATED so the new version
// applies without a reload. Generations owned by other apps and the current
// generation itself are never touched.
func (w *Worker) Activate(ctx context.Context, _ events.Event) error {
	select {
	case <-w.waiting:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.setState(StateActivating)

	names, err := w.store.Names(ctx)
	if err != nil {
		return fmt.Errorf("enumerate cache generations: %w", err)
	}

	current := w.cfg.CacheName()
	for _, name := range names {
		if !strings.HasPrefix(name, w.cfg.CachePrefix) || name == current {
			continue
		}
		if _, err := w.store.Drop(ctx, name); err != nil {
			return fmt.Errorf("drop stale generation %q: %w", name, err)
		}
		w.logger.Info("stale generation dropped", slog.String("generation", name))
	}

	w.setState(StateActive)

	notice := messaging.UpdatedNotice{Message: "Nueva versión " + w.cfg.Version + " activa"}
	msg, err := messaging.Outbound(messaging.TypeWorkerUpdated, notice)
	if err != nil {
		return err
	}
	receivers, err := w.broadcaster.Broadcast(ctx, msg)
	if err != nil {
		w.logger.Warn("update broadcast failed", slog.String("error", err.Error()))
	} else {
		w.logger.Info("pages claimed", slog.Int("receivers", receivers))
	}

	return nil
}
