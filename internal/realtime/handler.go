package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/shared"
)

// Handler upgrades authenticated requests to websocket connections joined to the actor's channel.
type Handler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("websocket upgrade", slog.Any("error", err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	leave := h.hub.Join(actor.ID, conn)
	go func() {
		defer leave()
		for {
			// Clients only send pings and close frames; wsutil answers control frames.
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()
}
