package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relojapp/offline-worker/internal/config"
	"github.com/relojapp/offline-worker/internal/events"
	"github.com/relojapp/offline-worker/internal/messaging"
	"github.com/relojapp/offline-worker/internal/notify"
	"github.com/relojapp/offline-worker/internal/worker"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Handler exposes the worker's event surface over HTTP: messaging, push,
// notification clicks, sync triggers, and status, with the fetch
// interceptor as the catch-all route.
type Handler struct {
	cfg      config.Config
	logger   *slog.Logger
	bus      *events.Bus
	worker   *worker.Worker
	messages *messaging.Handler
	notifier *notify.Notifier
	mux      *http.ServeMux
}

// New builds the HTTP routing surface.
func New(cfg config.Config, logger *slog.Logger, bus *events.Bus, wrk *worker.Worker, interceptor http.Handler, messages *messaging.Handler, notifier *notify.Notifier) *Handler {
	h := &Handler{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "server")),
		bus:      bus,
		worker:   wrk,
		messages: messages,
		notifier: notifier,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /worker/message", h.handleMessage)
	h.mux.HandleFunc("POST /worker/push", h.handlePush)
	h.mux.HandleFunc("POST /worker/notification/click", h.handleNotificationClick)
	h.mux.HandleFunc("POST /worker/sync", h.handleEvent(events.KindSync))
	h.mux.HandleFunc("POST /worker/periodicsync", h.handleEvent(events.KindPeriodicSync))
	h.mux.HandleFunc("POST /worker/event/{kind}", h.handleLifecycleEvent)
	h.mux.HandleFunc("GET /worker/status", h.handleStatus)
	h.mux.Handle("/", interceptor)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg messaging.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}

	if err := h.bus.Dispatch(r.Context(), events.Event{Kind: events.KindMessage, Data: msg.Type}); err != nil {
		h.logger.Warn("message event dispatch failed", slog.String("error", err.Error()))
	}

	reply, err := h.messages.Handle(r.Context(), msg)
	if err != nil {
		if errors.Is(err, messaging.ErrUnknownType) {
			h.respondError(w, http.StatusBadRequest, err)
			return
		}
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	h.respondJSON(w, http.StatusOK, reply)
}

func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	notification, err := h.notifier.Push(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, notification)
}

func (h *Handler) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	var click notify.ClickEvent
	if err := json.NewDecoder(r.Body).Decode(&click); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("decode click: %w", err))
		return
	}

	if err := h.bus.Dispatch(r.Context(), events.Event{Kind: events.KindNotificationClick, Data: click}); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, messaging.StatusReply{Status: "ok"})
}

// handleEvent dispatches kinds whose handlers carry no reply payload.
func (h *Handler) handleEvent(kind events.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.bus.Dispatch(r.Context(), events.Event{Kind: kind}); err != nil {
			h.respondError(w, http.StatusInternalServerError, err)
			return
		}
		h.respondJSON(w, http.StatusAccepted, messaging.StatusReply{Status: "ok"})
	}
}

func (h *Handler) handleLifecycleEvent(w http.ResponseWriter, r *http.Request) {
	kind := events.Kind(strings.ToLower(r.PathValue("kind")))
	switch kind {
	case events.KindAppInstalled, events.KindControllerChange:
	default:
		h.respondError(w, http.StatusNotFound, fmt.Errorf("unknown event kind %q", kind))
		return
	}

	if err := h.bus.Dispatch(r.Context(), events.Event{Kind: kind}); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, messaging.StatusReply{Status: "ok"})
}

type statusReply struct {
	State     string `json:"state"`
	Version   string `json:"version"`
	CacheName string `json:"cache_name"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, statusReply{
		State:     h.worker.State().String(),
		Version:   h.cfg.Version,
		CacheName: h.cfg.CacheName(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("encode response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}
