package orders

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/shared"
)

const maxUploadBytes = 10 << 20

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers order routes relative to /orders.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrderView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/history", h.history)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermOrderPlace))
		r.Post("/", h.place)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermOrderAmend))
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/advance", h.amendAdvance)
		r.Post("/{id}/advance-proof", h.attachProof)
	})
	r.With(h.rbac.RequireAll(shared.PermOrderForward)).Post("/{id}/forward", h.forward)
	r.With(h.rbac.RequireAll(shared.PermOrderAssignWarehouse)).Post("/{id}/assign-warehouse", h.assignWarehouse)
	r.With(h.rbac.RequireAll(shared.PermOrderApprove)).Post("/{id}/approve", h.approve)
	r.With(h.rbac.RequireAll(shared.PermOrderApproveWarehouse)).Post("/{id}/admin-approve", h.adminApprove)
	r.With(h.rbac.RequireAll(shared.PermOrderDispatch)).Post("/{id}/dispatch", h.dispatch)
	r.With(h.rbac.RequireAll(shared.PermOrderDeliver)).Post("/{id}/deliver", h.deliver)
	r.With(h.rbac.RequireAll(shared.PermOrderCancel)).Post("/{id}/cancel", h.cancel)
	r.With(h.rbac.RequireAll(shared.PermOrderInvoice)).Post("/{id}/invoice", h.attachInvoice)
}

type amendAdvanceRequest struct {
	AdvanceAmount int64 `json:"advance_amount" validate:"gte=0"`
}

type assignWarehouseRequest struct {
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type listResponse struct {
	Data       []Order           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if raw := q.Get("party_id"); raw != "" {
		id, err := httpx.PathInt64(raw, "party_id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.PartyID = id
	}
	if raw := q.Get("warehouse_id"); raw != "" {
		id, err := httpx.PathInt64(raw, "warehouse_id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Warehouse = id
	}
	items, page, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []Order{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Pagination: page})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	logs, err := h.service.History(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req PlaceRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	order, err := h.service.Place(r.Context(), actor, req)
	h.respond(w, r, http.StatusCreated, order, err)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) amendAdvance(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req amendAdvanceRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AmendAdvance(r.Context(), actor, chi.URLParam(r, "id"), req.AdvanceAmount)
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) attachProof(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	upload, err := readUpload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AttachAdvanceProof(r.Context(), actor, chi.URLParam(r, "id"), upload)
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) attachInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	upload, err := readUpload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AttachInvoice(r.Context(), actor, chi.URLParam(r, "id"), upload)
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	order, err := h.service.Forward(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) assignWarehouse(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req assignWarehouseRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AssignWarehouse(r.Context(), actor, chi.URLParam(r, "id"), req.WarehouseID)
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	order, err := h.service.ApproveToWarehouse(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) adminApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	order, err := h.service.ApproveWarehouse(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req DispatchRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Dispatch(r.Context(), actor, chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	order, err := h.service.Deliver(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Cancel(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	h.respond(w, r, http.StatusOK, order, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, order Order, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, order)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && httpx.IsServerError(err) {
		h.logger.ErrorContext(r.Context(), "order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func readUpload(r *http.Request) (Upload, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return Upload{}, shared.Validationf("invalid upload: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return Upload{}, shared.Validationf("file is required")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return Upload{}, shared.Validationf("read upload: %v", err)
	}
	if len(data) > maxUploadBytes {
		return Upload{}, shared.Validationf("file exceeds %d bytes", maxUploadBytes)
	}
	return Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
