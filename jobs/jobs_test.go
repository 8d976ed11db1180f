package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/chat"
	jobmetrics "github.com/feedflow/feedflow/internal/jobs"
)

type stubChecker struct {
	calls  []chat.UnreadPayload
	pushed bool
	err    error
}

func (s *stubChecker) CheckUnread(_ context.Context, p chat.UnreadPayload) (bool, error) {
	s.calls = append(s.calls, p)
	return s.pushed, s.err
}

type stubSweeper struct{ removed int64 }

func (s stubSweeper) SweepExpired(context.Context) (int64, error) { return s.removed, nil }

type stubCleaner struct{ got time.Duration }

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.got = olderThan
	return 3, nil
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestChatUnreadJobDelegates(t *testing.T) {
	checker := &stubChecker{pushed: true}
	job := NewChatUnreadJob(checker, nil, testMetrics())
	task, err := chat.NewUnreadCheckTask(chat.UnreadPayload{MessageID: "m-1", ReceiverID: 7})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []chat.UnreadPayload{{MessageID: "m-1", ReceiverID: 7}}, checker.calls)
}

func TestChatUnreadJobSkipsRetryAfterConsumedMarker(t *testing.T) {
	checker := &stubChecker{pushed: true, err: errors.New("push service down")}
	job := NewChatUnreadJob(checker, nil, testMetrics())
	task, err := chat.NewUnreadCheckTask(chat.UnreadPayload{MessageID: "m-2", ReceiverID: 7})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	checker.pushed = false
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestChatUnreadJobRejectsMalformedPayload(t *testing.T) {
	job := NewChatUnreadJob(&stubChecker{}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskChatUnreadCheck, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMaintenanceJobs(t *testing.T) {
	sweep := NewSweepSubscriptionsJob(stubSweeper{removed: 4}, nil, testMetrics())
	require.NoError(t, sweep.Handle(context.Background(), NewSweepSubscriptionsTask()))

	cleaner := &stubCleaner{}
	cleanup := NewIdempotencyCleanupJob(cleaner, nil, testMetrics())
	task, err := NewIdempotencyCleanupTask(12)
	require.NoError(t, err)
	require.NoError(t, cleanup.Handle(context.Background(), task))
	require.Equal(t, 12*time.Hour, cleaner.got)

	require.NoError(t, cleanup.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, defaultIdempotencyRetention, cleaner.got)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Scheduled: 5}}, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, queueHealth{Queue: QueueDefault, Pending: 2, Scheduled: 5}, got)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
