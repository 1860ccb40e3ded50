package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/relojapp/offline-worker/internal/events"
	"github.com/relojapp/offline-worker/internal/messaging"
)

// recordingBroadcaster captures outbound messages and reports a fixed
// receiver count.
type recordingBroadcaster struct {
	receivers int
	messages  []messaging.Message
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, msg messaging.Message) (int, error) {
	b.messages = append(b.messages, msg)
	return b.receivers, nil
}

func newTestNotifier(receivers int) (*Notifier, *recordingBroadcaster, clockwork.Clock) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC))
	b := &recordingBroadcaster{receivers: receivers}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(clock, b, logger), b, clock
}

func TestPush_BuildsFixedPayload(t *testing.T) {
	t.Parallel()

	n, b, clock := newTestNotifier(2)

	notification, err := n.Push(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, notification.ID)
	require.Equal(t, "Reloj", notification.Title)
	require.NotEmpty(t, notification.Body)
	require.Equal(t, "/icons/icon-192.png", notification.Icon)
	require.Equal(t, clock.Now().UTC(), notification.IssuedAt)
	require.Equal(t, []Action{
		{Action: ActionDismiss, Title: "Descartar"},
		{Action: ActionSnooze, Title: "Posponer"},
	}, notification.Actions)

	require.Len(t, b.messages, 1)
	require.Equal(t, TypeShowNotification, b.messages[0].Type)

	var shown Notification
	require.NoError(t, json.Unmarshal(b.messages[0].Payload, &shown))
	require.Equal(t, notification.ID, shown.ID)
}

func TestClick_DismissIsSilent(t *testing.T) {
	t.Parallel()

	n, b, _ := newTestNotifier(1)

	require.NoError(t, n.Click(context.Background(), ClickEvent{ID: "n1", Action: ActionDismiss}))
	require.Empty(t, b.messages)
}

func TestClick_SnoozeIsExplicitlyUnimplemented(t *testing.T) {
	t.Parallel()

	n, _, _ := newTestNotifier(1)

	err := n.Click(context.Background(), ClickEvent{ID: "n1", Action: ActionSnooze})
	require.ErrorIs(t, err, events.ErrNotImplemented)
}

func TestClick_DefaultFocusesOpenPage(t *testing.T) {
	t.Parallel()

	n, b, _ := newTestNotifier(1)

	require.NoError(t, n.Click(context.Background(), ClickEvent{ID: "n1"}))
	require.Len(t, b.messages, 1)
	require.Equal(t, TypeFocusClient, b.messages[0].Type)
}

func TestClick_DefaultWithNoOpenPages(t *testing.T) {
	t.Parallel()

	n, b, _ := newTestNotifier(0)

	require.NoError(t, n.Click(context.Background(), ClickEvent{ID: "n1"}))
	require.Len(t, b.messages, 1)
}

func TestClick_UnknownActionIgnored(t *testing.T) {
	t.Parallel()

	n, _, _ := newTestNotifier(1)

	require.NoError(t, n.Click(context.Background(), ClickEvent{ID: "n1", Action: "explode"}))
}

func TestHandleClick_RejectsWrongPayloadType(t *testing.T) {
	t.Parallel()

	n, _, _ := newTestNotifier(1)

	err := n.HandleClick(context.Background(), events.Event{Kind: events.KindNotificationClick, Data: 42})
	require.Error(t, err)
}
