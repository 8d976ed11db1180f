package chat

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/shared"
)

// Handler exposes direct messages over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers chat routes relative to /chat.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermChatSend))
		r.Post("/messages", h.send)
		r.Post("/messages/{id}/read", h.markRead)
	})
}

type sendRequest struct {
	ReceiverID int64  `json:"receiver_id" validate:"required,gt=0"`
	Text       string `json:"text" validate:"required"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	msg, err := h.service.Send(r.Context(), actor, req.ReceiverID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && httpx.IsServerError(err) {
		h.logger.ErrorContext(r.Context(), "chat request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
