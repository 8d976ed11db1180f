package stock

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/shared"
)

// Handler exposes warehouse stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers stock routes relative to /stock.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermStockView)).Get("/{warehouseID}", h.levels)
	r.With(h.rbac.RequireAll(shared.PermStockReceive)).Post("/{warehouseID}/receive", h.receive)
}

type receiveRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Note      string `json:"note" validate:"max=200"`
}

func (h *Handler) levels(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	warehouseID, err := httpx.PathInt64(chi.URLParam(r, "warehouseID"), "warehouse id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Levels(r.Context(), actor, warehouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	warehouseID, err := httpx.PathInt64(chi.URLParam(r, "warehouseID"), "warehouse id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Receive(r.Context(), actor, ReceiveInput{
		WarehouseID: warehouseID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Note:        req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && httpx.IsServerError(err) {
		h.logger.ErrorContext(r.Context(), "stock request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
