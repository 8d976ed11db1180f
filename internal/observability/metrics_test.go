package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := NewMetrics()
	m.Notification("push", "gone")
	m.Notification("push", "gone")
	m.Transition("approve")

	require.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("push", "gone")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "feedflow_notifications_total")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Notification("push", "ok")
	m.Transition("approve")
	require.NotNil(t, m.Middleware(http.NotFoundHandler()))
}
