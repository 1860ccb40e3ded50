package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/relojapp/offline-worker/internal/events"
	"github.com/relojapp/offline-worker/internal/messaging"
)

// Notification actions offered on the alarm notification.
const (
	ActionDismiss = "dismiss"
	ActionSnooze  = "snooze"
)

// Outbound broadcast types for the notification surface.
const (
	TypeShowNotification = "SHOW_NOTIFICATION"
	TypeFocusClient      = "FOCUS_CLIENT"
)

// Action is one button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is the fixed payload shown on a push event.
type Notification struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Icon     string    `json:"icon"`
	Badge    string    `json:"badge"`
	Actions  []Action  `json:"actions"`
	IssuedAt time.Time `json:"issued_at"`
}

// ClickEvent reports a user interaction with a displayed notification.
type ClickEvent struct {
	ID     string `json:"id"`
	Action string `json:"action,omitempty"`
}

// Notifier builds notifications and reacts to clicks. It holds no state
// between events.
type Notifier struct {
	clock       clockwork.Clock
	broadcaster messaging.Broadcaster
	logger      *slog.Logger
}

// New constructs a notifier.
func New(clock clockwork.Clock, broadcaster messaging.Broadcaster, logger *slog.Logger) *Notifier {
	return &Notifier{
		clock:       clock,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "notify")),
	}
}

// HandlePush builds the fixed alarm notification and displays it by
// broadcasting to the open pages. The push event itself carries no payload
// worth parsing.
func (n *Notifier) HandlePush(ctx context.Context, _ events.Event) error {
	_, err := n.Push(ctx)
	return err
}

// Push builds and broadcasts the notification, returning what was shown.
func (n *Notifier) Push(ctx context.Context) (Notification, error) {
	notification := Notification{
		ID:    uuid.NewString(),
		Title: "Reloj",
		Body:  "¡Es la hora! Tu alarma está sonando.",
		Icon:  "/icons/icon-192.png",
		Badge: "/icons/icon-96.png",
		Actions: []Action{
			{Action: ActionDismiss, Title: "Descartar"},
			{Action: ActionSnooze, Title: "Posponer"},
		},
		IssuedAt: n.clock.Now().UTC(),
	}

	msg, err := messaging.Outbound(TypeShowNotification, notification)
	if err != nil {
		return Notification{}, err
	}
	receivers, err := n.broadcaster.Broadcast(ctx, msg)
	if err != nil {
		return Notification{}, fmt.Errorf("display notification: %w", err)
	}

	n.logger.Info("notification displayed",
		slog.String("id", notification.ID),
		slog.Int("receivers", receivers))
	return notification, nil
}

// HandleClick closes the notification and applies the chosen action.
// Dismiss does nothing further; snooze is an intentionally inert stub; the
// default click focuses an open page, or notes that none is open.
func (n *Notifier) HandleClick(ctx context.Context, ev events.Event) error {
	click, ok := ev.Data.(ClickEvent)
	if !ok {
		return fmt.Errorf("notification click event carries %T, want ClickEvent", ev.Data)
	}
	return n.Click(ctx, click)
}

// Click processes one notification interaction.
func (n *Notifier) Click(ctx context.Context, click ClickEvent) error {
	n.logger.Info("notification closed",
		slog.String("id", click.ID),
		slog.String("action", click.Action))

	switch click.Action {
	case ActionDismiss:
		return nil

	case ActionSnooze:
		// Snooze needs the alarm scheduling contract that is still open.
		return fmt.Errorf("snooze: %w", events.ErrNotImplemented)

	case "":
		msg, err := messaging.Outbound(TypeFocusClient, ClickEvent{ID: click.ID})
		if err != nil {
			return err
		}
		receivers, err := n.broadcaster.Broadcast(ctx, msg)
		if err != nil {
			return fmt.Errorf("focus page: %w", err)
		}
		if receivers == 0 {
			n.logger.Info("no open page to focus, a new page instance is needed")
		}
		return nil

	default:
		n.logger.Warn("unknown notification action ignored", slog.String("action", click.Action))
		return nil
	}
}
