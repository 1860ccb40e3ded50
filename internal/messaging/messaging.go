package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Inbound message types accepted from pages.
const (
	TypeSkipWaiting   = "SKIP_WAITING"
	TypeGetVersion    = "GET_VERSION"
	TypeScheduleAlarm = "SCHEDULE_ALARM"
)

// TypeWorkerUpdated is broadcast to all open pages when a new worker
// version takes control.
const TypeWorkerUpdated = "SW_UPDATED"

// ErrUnknownType rejects message types outside the contract.
var ErrUnknownType = errors.New("unknown message type")

// Message is the cross-context envelope exchanged with pages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// VersionReply answers GET_VERSION. CachedFiles is the length of the
// configured asset list, not a count of successful cache writes.
type VersionReply struct {
	Version     string `json:"version"`
	CachedFiles int    `json:"cached_files"`
}

// StatusReply answers messages that carry no data back.
type StatusReply struct {
	Status string `json:"status"`
}

// UpdatedNotice is the SW_UPDATED payload.
type UpdatedNotice struct {
	Message string `json:"message"`
}

type alarmRequest struct {
	Time json.RawMessage `json:"time"`
}

// Outbound builds a broadcast message carrying a JSON payload.
func Outbound(msgType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: data}, nil
}

// Handler implements the inbound side of the message contract.
type Handler struct {
	version     string
	cachedFiles int
	skipWaiting func()
	logger      *slog.Logger
}

// NewHandler constructs a message handler. skipWaiting releases the
// worker's waiting gate and must be idempotent.
func NewHandler(version string, cachedFiles int, skipWaiting func(), logger *slog.Logger) *Handler {
	return &Handler{
		version:     version,
		cachedFiles: cachedFiles,
		skipWaiting: skipWaiting,
		logger:      logger.With(slog.String("component", "messaging")),
	}
}

// Handle processes one inbound message and returns the reply payload.
func (h *Handler) Handle(_ context.Context, msg Message) (any, error) {
	switch msg.Type {
	case TypeSkipWaiting:
		h.logger.Info("skip waiting requested by page")
		h.skipWaiting()
		return StatusReply{Status: "ok"}, nil

	case TypeGetVersion:
		return VersionReply{Version: h.version, CachedFiles: h.cachedFiles}, nil

	case TypeScheduleAlarm:
		var req alarmRequest
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", TypeScheduleAlarm, err)
			}
		}
		// No timer is armed. Whether alarms arrive via push or page-local
		// timers is still undecided, so this stays an inert stub.
		h.logger.Info("alarm scheduling not implemented", slog.String("time", string(req.Time)))
		return StatusReply{Status: "unimplemented"}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}
