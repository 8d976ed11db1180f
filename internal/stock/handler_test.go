package stock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/shared"
)

func serve(h http.Handler, actor shared.Actor, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReceiveThenList(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	r := chi.NewRouter()
	r.Route("/stock", NewHandler(nil, NewService(repo, audit), rbac.Middleware{}).MountRoutes)
	plantHead := shared.Actor{ID: 7, Role: shared.RolePlantHead}

	rec := serve(r, plantHead, http.MethodPost, "/stock/10/receive", `{"product_id":1,"quantity":25,"note":"truck 4"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Equal(t, int64(25), repo.levels[warehouse][productA])
	require.Len(t, audit.logs, 1)

	rec = serve(r, plantHead, http.MethodGet, "/stock/10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []Entry{{WarehouseID: warehouse, ProductID: productA, Quantity: 25}}, resp.Data)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/stock", NewHandler(nil, NewService(newMemoryRepo(), nil), rbac.Middleware{}).MountRoutes)
	plantHead := shared.Actor{ID: 7, Role: shared.RolePlantHead}

	rec := serve(r, plantHead, http.MethodPost, "/stock/10/receive", `{"product_id":1,"quantity":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, plantHead, http.MethodGet, "/stock/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	salesman := shared.Actor{ID: 3, Role: shared.RoleSalesman}
	rec = serve(r, salesman, http.MethodPost, "/stock/10/receive", `{"product_id":1,"quantity":2}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
