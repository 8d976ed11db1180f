package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedflow/feedflow/internal/shared"
)

// ErrGone is returned by a Pusher when the endpoint no longer exists.
var ErrGone = errors.New("notify: push subscription gone")

const (
	defaultPushTimeout = 5 * time.Second
	pushConcurrency    = 16
)

// Store persists inbox rows.
type Store interface {
	InsertBatch(ctx context.Context, rows []Notification) (int64, error)
	List(ctx context.Context, receiverID int64, unreadOnly bool, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, receiverID int64) (int, error)
	MarkRead(ctx context.Context, receiverID int64, ids []int64) (int64, error)
}

// SubscriptionStore persists push endpoints.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub Subscription) (int64, error)
	Match(ctx context.Context, roles []shared.Role, employeeIDs []int64) ([]Subscription, error)
	ForEmployee(ctx context.Context, employeeID int64) ([]Subscription, error)
	Delete(ctx context.Context, id int64) error
	DeleteByBrowser(ctx context.Context, employeeID int64, browserID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Emitter delivers a realtime event to one user channel, at most once.
type Emitter interface {
	Emit(ctx context.Context, channelID int64, event string, payload any) error
}

// Pusher sends one web push message. It returns ErrGone for dead endpoints.
type Pusher interface {
	Send(ctx context.Context, sub Subscription, body []byte) error
}

// Recorder counts delivery outcomes per channel.
type Recorder interface {
	Notification(channel, outcome string)
}

// Report summarises one fan-out.
type Report struct {
	Recipients int   `json:"recipients"`
	Persisted  int64 `json:"persisted"`
	Emitted    int64 `json:"emitted"`
	Pushed     int64 `json:"pushed"`
	Removed    int64 `json:"removed"`
	Failed     int64 `json:"failed"`
}

// Fanout delivers payloads to every channel independently.
type Fanout struct {
	store       Store
	subs        SubscriptionStore
	emitter     Emitter
	pusher      Pusher
	recorder    Recorder
	pushTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises a Fanout.
type Option func(*Fanout)

// WithPusher enables web push delivery.
func WithPusher(p Pusher) Option {
	return func(f *Fanout) { f.pusher = p }
}

// WithRecorder attaches outcome counters.
func WithRecorder(r Recorder) Option {
	return func(f *Fanout) { f.recorder = r }
}

// WithPushTimeout bounds each push send.
func WithPushTimeout(d time.Duration) Option {
	return func(f *Fanout) {
		if d > 0 {
			f.pushTimeout = d
		}
	}
}

// NewFanout wires the delivery channels. A nil emitter disables realtime.
func NewFanout(store Store, subs SubscriptionStore, emitter Emitter, logger *slog.Logger, opts ...Option) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{
		store:       store,
		subs:        subs,
		emitter:     emitter,
		pushTimeout: defaultPushTimeout,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Notify persists one row per recipient, emits a realtime event to each and
// pushes to every subscription held by the recipients or by the given roles.
// Only a persistence failure is returned, wrapped in shared.ErrDelivery.
func (f *Fanout) Notify(ctx context.Context, roles []shared.Role, p Payload) (Report, error) {
	if !p.Type.IsValid() {
		return Report{}, shared.Validationf("unknown notification type %q", p.Type)
	}
	if p.Title == "" {
		p.Title = p.Type.Title()
	}
	receivers := dedupe(p.ReceiverIDs)
	report := Report{Recipients: len(receivers)}
	if len(receivers) == 0 && len(roles) == 0 {
		return report, nil
	}

	var persisted, emitted, pushed, removed, failed atomic.Int64
	var persistErr error

	var g errgroup.Group
	g.Go(func() error {
		n, err := f.persist(ctx, receivers, p)
		persisted.Store(n)
		if err != nil {
			persistErr = err
			f.record("inbox", "error")
		} else if n > 0 {
			f.record("inbox", "ok")
		}
		return nil
	})
	g.Go(func() error {
		emitted.Store(f.emit(ctx, receivers, p))
		return nil
	})
	g.Go(func() error {
		subs, err := f.subs.Match(ctx, roles, receivers)
		if err != nil {
			f.logger.WarnContext(ctx, "resolve push subscriptions", slog.String("type", string(p.Type)), slog.Any("error", err))
			failed.Add(1)
			return nil
		}
		ok, gone, bad := f.pushAll(ctx, subs, p)
		pushed.Add(ok)
		removed.Add(gone)
		failed.Add(bad)
		return nil
	})
	_ = g.Wait()

	report.Persisted = persisted.Load()
	report.Emitted = emitted.Load()
	report.Pushed = pushed.Load()
	report.Removed = removed.Load()
	report.Failed = failed.Load()
	if persistErr != nil {
		return report, fmt.Errorf("%w: persist %s: %v", shared.ErrDelivery, p.Type, persistErr)
	}
	return report, nil
}

// PushOne pushes p to every device of one employee without persisting it.
func (f *Fanout) PushOne(ctx context.Context, employeeID int64, p Payload) (Report, error) {
	if p.Title == "" {
		p.Title = p.Type.Title()
	}
	subs, err := f.subs.ForEmployee(ctx, employeeID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: load subscriptions: %v", shared.ErrDelivery, err)
	}
	ok, gone, bad := f.pushAll(ctx, subs, p)
	return Report{Recipients: 1, Pushed: ok, Removed: gone, Failed: bad}, nil
}

func (f *Fanout) persist(ctx context.Context, receivers []int64, p Payload) (int64, error) {
	if len(receivers) == 0 {
		return 0, nil
	}
	now := f.now().UTC()
	rows := make([]Notification, len(receivers))
	for i, id := range receivers {
		rows[i] = Notification{
			ReceiverID: id,
			SenderID:   p.SenderID,
			OrderID:    p.OrderID,
			Type:       p.Type,
			Title:      p.Title,
			Message:    p.Message,
			CreatedAt:  now,
		}
	}
	return f.store.InsertBatch(ctx, rows)
}

func (f *Fanout) emit(ctx context.Context, receivers []int64, p Payload) int64 {
	if f.emitter == nil {
		return 0
	}
	var sent int64
	event := p.Event()
	for _, id := range receivers {
		if err := f.emitter.Emit(ctx, id, string(p.Type), event); err != nil {
			f.logger.DebugContext(ctx, "realtime emit failed", slog.Int64("receiver_id", id), slog.Any("error", err))
			f.record("realtime", "error")
			continue
		}
		sent++
		f.record("realtime", "ok")
	}
	return sent
}

func (f *Fanout) pushAll(ctx context.Context, subs []Subscription, p Payload) (ok, gone, failed int64) {
	if f.pusher == nil || len(subs) == 0 {
		return 0, 0, 0
	}
	body, err := json.Marshal(pushMessage{Title: p.Title, Body: p.Message, Type: p.Type, OrderID: p.OrderID, SenderID: p.SenderID})
	if err != nil {
		f.logger.ErrorContext(ctx, "encode push payload", slog.Any("error", err))
		return 0, 0, int64(len(subs))
	}

	var sent, dead, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(pushConcurrency)
	for _, sub := range subs {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, f.pushTimeout)
			defer cancel()
			err := f.pusher.Send(pctx, sub, body)
			switch {
			case err == nil:
				sent.Add(1)
				f.record("push", "ok")
			case errors.Is(err, ErrGone):
				if delErr := f.subs.Delete(ctx, sub.ID); delErr != nil {
					f.logger.WarnContext(ctx, "delete gone subscription", slog.Int64("subscription_id", sub.ID), slog.Any("error", delErr))
				} else {
					dead.Add(1)
				}
				f.record("push", "gone")
			default:
				bad.Add(1)
				f.record("push", "error")
				f.logger.WarnContext(ctx, "push send failed",
					slog.Int64("subscription_id", sub.ID),
					slog.Int64("employee_id", sub.EmployeeID),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return sent.Load(), dead.Load(), bad.Load()
}

func (f *Fanout) record(channel, outcome string) {
	if f.recorder != nil {
		f.recorder.Notification(channel, outcome)
	}
}

type pushMessage struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Type     Type   `json:"type"`
	OrderID  string `json:"order_id,omitempty"`
	SenderID int64  `json:"sender_id"`
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
