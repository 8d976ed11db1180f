package payments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/feedflow/feedflow/internal/orders"
	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/shared"
)

// Handler exposes the payment ledger over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountOrderRoutes registers ledger routes on the /orders router.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll(shared.PermPaymentCollect)).Post("/{id}/payments", h.apply)
	r.With(h.rbac.RequireAll(shared.PermPaymentConfirmAdvance)).Post("/{id}/advance/confirm", h.confirmAdvance)
}

// MountRoutes registers routes relative to /payments.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermPaymentHistory)).Get("/history", h.history)
}

type applyResponse struct {
	Order   orders.Order `json:"order"`
	Payment Record       `json:"payment"`
}

type historyResponse struct {
	Data       []Record          `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req ApplyInput
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, rec, err := h.service.ApplyPayment(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, applyResponse{Order: order, Payment: rec})
}

func (h *Handler) confirmAdvance(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	order, err := h.service.ConfirmAdvance(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := HistoryFilter{OrderID: q.Get("order_id")}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if raw := q.Get("salesman_id"); raw != "" {
		id, err := httpx.PathInt64(raw, "salesman_id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.SalesmanID = id
	}
	items, page, err := h.service.History(r.Context(), actor, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []Record{}
	}
	httpx.JSON(w, http.StatusOK, historyResponse{Data: items, Pagination: page})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && httpx.IsServerError(err) {
		h.logger.ErrorContext(r.Context(), "payment request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
