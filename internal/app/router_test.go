package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/auth"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/shared"
)

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (shared.Actor, error) {
	if token != "good" {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	return shared.Actor{ID: 1, Role: shared.RoleAdmin}, nil
}

func newTestRouter() http.Handler {
	return NewRouter(RouterParams{
		Config:             &Config{AppEnv: "test"},
		Authenticator:      auth.Middleware{Verifier: staticVerifier{}},
		PermissionsHandler: rbac.NewPermissionsHandler(),
	})
}

func TestRouterHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterRequiresBearer(t *testing.T) {
	h := newTestRouter()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/permissions", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
