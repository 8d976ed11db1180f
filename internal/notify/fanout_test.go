package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/shared"
)

type memoryStore struct {
	mu     sync.Mutex
	rows   []Notification
	nextID int64
	err    error
}

func (m *memoryStore) InsertBatch(_ context.Context, rows []Notification) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	for _, r := range rows {
		m.nextID++
		r.ID = m.nextID
		m.rows = append(m.rows, r)
	}
	return int64(len(rows)), nil
}

func (m *memoryStore) List(_ context.Context, receiverID int64, unreadOnly bool, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.rows[i]
		if r.ReceiverID != receiverID || (unreadOnly && r.Read) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStore) UnreadCount(_ context.Context, receiverID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.ReceiverID == receiverID && !r.Read {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) MarkRead(_ context.Context, receiverID int64, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i := range m.rows {
		if m.rows[i].ReceiverID == receiverID && want[m.rows[i].ID] && !m.rows[i].Read {
			m.rows[i].Read = true
			n++
		}
	}
	return n, nil
}

type memorySubs struct {
	mu     sync.Mutex
	subs   map[int64]Subscription
	nextID int64
}

func newMemorySubs(subs ...Subscription) *memorySubs {
	m := &memorySubs{subs: make(map[int64]Subscription)}
	for _, s := range subs {
		_, _ = m.Upsert(context.Background(), s)
	}
	return m
}

func (m *memorySubs) Upsert(_ context.Context, sub Subscription) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subs {
		if s.EmployeeID == sub.EmployeeID && s.BrowserID == sub.BrowserID {
			sub.ID = id
			m.subs[id] = sub
			return id, nil
		}
	}
	m.nextID++
	sub.ID = m.nextID
	m.subs[sub.ID] = sub
	return sub.ID, nil
}

func (m *memorySubs) Match(_ context.Context, roles []shared.Role, employeeIDs []int64) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Subscription
	for _, s := range m.subs {
		matched := false
		for _, r := range roles {
			matched = matched || s.Role == r
		}
		for _, id := range employeeIDs {
			matched = matched || s.EmployeeID == id
		}
		if matched {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memorySubs) ForEmployee(ctx context.Context, employeeID int64) ([]Subscription, error) {
	return m.Match(ctx, nil, []int64{employeeID})
}

func (m *memorySubs) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

func (m *memorySubs) DeleteByBrowser(_ context.Context, employeeID int64, browserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subs {
		if s.EmployeeID == employeeID && s.BrowserID == browserID {
			delete(m.subs, id)
			return nil
		}
	}
	return shared.NotFoundf("subscription %s", browserID)
}

func (m *memorySubs) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.subs {
		if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
			delete(m.subs, id)
			n++
		}
	}
	return n, nil
}

func (m *memorySubs) ids() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []int64
}

func (e *recordingEmitter) Emit(_ context.Context, channelID int64, _ string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, channelID)
	return nil
}

type scriptedPusher struct {
	mu       sync.Mutex
	attempts []string
	results  map[string]error
	delay    map[string]time.Duration
}

func (p *scriptedPusher) Send(ctx context.Context, sub Subscription, _ []byte) error {
	if d, ok := p.delay[sub.Endpoint]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			p.record(sub.Endpoint)
			return ctx.Err()
		}
	}
	p.record(sub.Endpoint)
	return p.results[sub.Endpoint]
}

func (p *scriptedPusher) record(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, endpoint)
}

func TestNotifyAdminsPersistsEmitsAndPushes(t *testing.T) {
	store := &memoryStore{}
	subs := newMemorySubs(
		Subscription{EmployeeID: 1, Role: shared.RoleAdmin, BrowserID: "a", Endpoint: "https://push/1a"},
		Subscription{EmployeeID: 2, Role: shared.RoleAdmin, BrowserID: "b", Endpoint: "https://push/2b"},
		Subscription{EmployeeID: 2, Role: shared.RoleAdmin, BrowserID: "c", Endpoint: "https://push/2c"},
		Subscription{EmployeeID: 9, Role: shared.RolePlantHead, BrowserID: "d", Endpoint: "https://push/9d"},
	)
	emitter := &recordingEmitter{}
	pusher := &scriptedPusher{results: map[string]error{"https://push/2b": ErrGone}}
	fanout := NewFanout(store, subs, emitter, nil, WithPusher(pusher))

	payload := OrderApproved(7, "00042", 3).To(1, 2, 2)
	report, err := fanout.Notify(context.Background(), []shared.Role{shared.RoleAdmin}, payload)
	require.NoError(t, err)

	require.Len(t, store.rows, 2)
	require.ElementsMatch(t, []int64{1, 2}, []int64{store.rows[0].ReceiverID, store.rows[1].ReceiverID})
	for _, row := range store.rows {
		require.False(t, row.Read)
		require.Equal(t, TypeOrderApproved, row.Type)
		require.Equal(t, "00042", row.OrderID)
	}
	require.ElementsMatch(t, []int64{1, 2}, emitter.calls)
	require.ElementsMatch(t, []string{"https://push/1a", "https://push/2b", "https://push/2c"}, pusher.attempts)

	require.Equal(t, Report{Recipients: 2, Persisted: 2, Emitted: 2, Pushed: 2, Removed: 1}, report)
	require.Equal(t, []int64{1, 3, 4}, subs.ids())
}

func TestNotifyPersistenceFailureIsDeliveryError(t *testing.T) {
	store := &memoryStore{err: errors.New("copy failed")}
	emitter := &recordingEmitter{}
	fanout := NewFanout(store, newMemorySubs(), emitter, nil)

	report, err := fanout.Notify(context.Background(), nil, OrderPlaced(1, "00001", "Acme", 1000).To(5))
	require.ErrorIs(t, err, shared.ErrDelivery)
	require.Equal(t, []int64{5}, emitter.calls)
	require.Zero(t, report.Persisted)
}

func TestNotifyOtherPushFailuresAreSwallowed(t *testing.T) {
	subs := newMemorySubs(Subscription{EmployeeID: 4, Role: shared.RoleAccountant, BrowserID: "x", Endpoint: "https://push/4x"})
	pusher := &scriptedPusher{results: map[string]error{"https://push/4x": errors.New("503")}}
	fanout := NewFanout(&memoryStore{}, subs, nil, nil, WithPusher(pusher))

	report, err := fanout.Notify(context.Background(), nil, AdvanceProofPending(1, "00003", 500).To(4))
	require.NoError(t, err)
	require.EqualValues(t, 1, report.Failed)
	require.Equal(t, []int64{1}, subs.ids())
}

func TestSlowPushDoesNotDelayOthers(t *testing.T) {
	subs := newMemorySubs(
		Subscription{EmployeeID: 1, BrowserID: "slow", Endpoint: "slow"},
		Subscription{EmployeeID: 2, BrowserID: "fast", Endpoint: "fast"},
	)
	pusher := &scriptedPusher{delay: map[string]time.Duration{"slow": time.Minute}}
	fanout := NewFanout(&memoryStore{}, subs, nil, nil, WithPusher(pusher), WithPushTimeout(50*time.Millisecond))

	start := time.Now()
	report, err := fanout.Notify(context.Background(), nil, OrderDispatched(1, "00002", "KA01").To(1, 2))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.EqualValues(t, 1, report.Pushed)
	require.EqualValues(t, 1, report.Failed)
}

func TestNotifyRejectsUnknownType(t *testing.T) {
	fanout := NewFanout(&memoryStore{}, newMemorySubs(), nil, nil)
	_, err := fanout.Notify(context.Background(), nil, Payload{Type: "bogus", ReceiverIDs: []int64{1}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPushOneTargetsSingleEmployee(t *testing.T) {
	subs := newMemorySubs(
		Subscription{EmployeeID: 3, BrowserID: "a", Endpoint: "e3a"},
		Subscription{EmployeeID: 3, BrowserID: "b", Endpoint: "e3b"},
		Subscription{EmployeeID: 4, BrowserID: "a", Endpoint: "e4a"},
	)
	store := &memoryStore{}
	pusher := &scriptedPusher{}
	fanout := NewFanout(store, subs, nil, nil, WithPusher(pusher))

	report, err := fanout.PushOne(context.Background(), 3, ChatMessage(4, "Ravi", "stock arrived"))
	require.NoError(t, err)
	require.EqualValues(t, 2, report.Pushed)
	require.ElementsMatch(t, []string{"e3a", "e3b"}, pusher.attempts)
	require.Empty(t, store.rows)
}

func TestMessagesGroupAmounts(t *testing.T) {
	p := OrderPlaced(1, "00010", "Green Farms", 1250000)
	require.Equal(t, "Order 00010 for Green Farms placed, total 1,250,000", p.Message)
	require.Equal(t, "New order placed", p.Title)
}
