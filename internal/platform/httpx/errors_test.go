package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Validationf("bad"), http.StatusBadRequest},
		{shared.NotFoundf("order 1"), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", shared.ErrForbidden), http.StatusForbidden},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("%w: dup", shared.ErrConflict), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorConflictCarriesCurrentStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.ConflictError{Subject: "order 00001", Action: "cancel", Current: "Cancelled"})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeProblem(t, rec)
	require.Equal(t, "Cancelled", body["current"])
}

func TestRespondErrorShortfallListsEveryItem(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.StockShortfallError{WarehouseID: 1, Items: []shared.Shortfall{
		{ProductID: 1, Requested: 3, Available: 1},
		{ProductID: 2, Requested: 1, Available: 0},
	}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeProblem(t, rec)
	require.Len(t, body["errors"], 2)
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dsn password leaked"))
	body := decodeProblem(t, rec)
	require.NotContains(t, body, "detail")
	require.True(t, IsServerError(errors.New("x")))
	require.False(t, IsServerError(shared.ErrNotFound))
}
