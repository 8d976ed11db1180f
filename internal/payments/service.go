package payments

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feedflow/feedflow/internal/events"
	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/orders"
	"github.com/feedflow/feedflow/internal/platform/db"
	"github.com/feedflow/feedflow/internal/shared"
)

const maxTxAttempts = 3

// RepositoryPort abstracts payment persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	History(ctx context.Context, filter HistoryFilter) ([]Record, int, error)
}

// TxRepository exposes the ledger primitives available inside a transaction.
type TxRepository interface {
	Orders() orders.TxRepository
	Append(ctx context.Context, rec Record) (int64, error)
}

// Service is the payment ledger of orders.
type Service struct {
	repo      RepositoryPort
	guard     *orders.Guard
	directory orders.Directory
	notifier  orders.Notifier
	publisher orders.Publisher
	recorder  orders.Recorder
	async     bool
	logger    *slog.Logger
	now       func() time.Time
	inflight  sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher streams committed payment events.
func WithPublisher(p orders.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRecorder counts ledger transitions.
func WithRecorder(r orders.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithSyncNotifications delivers notifications before the call returns.
func WithSyncNotifications() Option {
	return func(s *Service) { s.async = false }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the payment ledger. The guard is shared with the order
// pipeline so both consult the same transition table.
func NewService(repo RepositoryPort, guard *orders.Guard, directory orders.Directory, notifier orders.Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		guard:     guard,
		directory: directory,
		notifier:  notifier,
		publisher: events.Nop{},
		async:     true,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Drain waits for in-flight notifications.
func (s *Service) Drain() {
	s.inflight.Wait()
}

// ApplyPayment collects amount against the order's due. Overpayment is
// rejected with the due left untouched. A cleared due marks the payment Paid
// and settles a delivered order to Paid.
func (s *Service) ApplyPayment(ctx context.Context, actor shared.Actor, orderID string, in ApplyInput) (orders.Order, Record, error) {
	if err := in.Validate(); err != nil {
		return orders.Order{}, Record{}, err
	}
	var out orders.Order
	var rec Record
	var from orders.Status
	err := s.retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			o, err := tx.Orders().Lock(ctx, orderID)
			if err != nil {
				return err
			}
			if err := s.guard.Check(ctx, actor, o, orders.EventApplyPayment); err != nil {
				return err
			}
			if in.Amount > o.DueAmount {
				return fmt.Errorf("%w: order %s amount %d due %d", ErrOverpayment, o.ID, in.Amount, o.DueAmount)
			}
			from = o.Status
			now := s.now().UTC()

			o.DueAmount -= in.Amount
			o.PaidAmount += in.Amount
			if o.DueAmount == 0 {
				o.PaymentStatus = orders.PaymentPaid
				o.DueStatus = orders.DueCleared
				if o.Status == orders.StatusDelivered {
					o.Status = orders.StatusPaid
				}
			} else {
				o.PaymentStatus = orders.PaymentPartial
				o.DueStatus = orders.DuePartial
			}
			if err := o.CheckAmounts(); err != nil {
				return err
			}
			o.UpdatedAt = now
			if err := tx.Orders().Save(ctx, o, from); err != nil {
				return err
			}

			rec = Record{
				OrderID:    o.ID,
				SalesmanID: o.PlacedBy,
				Amount:     in.Amount,
				Mode:       in.Mode,
				RecordedBy: actor.ID,
				PaidAt:     now,
			}
			if rec.ID, err = tx.Append(ctx, rec); err != nil {
				return err
			}
			if err := tx.Orders().RecordApproval(ctx, shared.ApprovalLog{
				Module:     orders.Module,
				RefID:      o.ID,
				ActorID:    actor.ID,
				ActorRole:  actor.Role,
				Action:     shared.ApprovalAction(orders.EventApplyPayment),
				FromStatus: string(from),
				ToStatus:   string(o.Status),
				Note:       fmt.Sprintf("%d %s", in.Amount, in.Mode),
				At:         now,
			}); err != nil {
				return err
			}
			out = o
			return nil
		})
	})
	if err != nil {
		return orders.Order{}, Record{}, err
	}

	s.committed(ctx, actor, out, orders.EventApplyPayment, from)
	s.dispatch(ctx, func(ctx context.Context) {
		receiver := out.PlacedBy
		if actor.Role == shared.RoleSalesman {
			receiver = s.accountantOf(ctx, out)
		}
		s.notify(ctx, nil, notify.PaymentReceived(actor.ID, out.ID, rec.Amount, out.DueAmount), receiver)
	})
	return out, rec, nil
}

// ConfirmAdvance is the accountant's confirmation of an advance proof routed
// at approval.
func (s *Service) ConfirmAdvance(ctx context.Context, actor shared.Actor, orderID string) (orders.Order, error) {
	var out orders.Order
	var from orders.Status
	err := s.retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			o, err := tx.Orders().Lock(ctx, orderID)
			if err != nil {
				return err
			}
			if err := s.guard.Check(ctx, actor, o, orders.EventConfirmAdvance); err != nil {
				return err
			}
			if o.AdvanceStatus != orders.AdvanceSentForApproval {
				return &shared.ConflictError{Subject: "order " + o.ID + " advance", Action: "confirm", Current: string(o.AdvanceStatus)}
			}
			from = o.Status
			now := s.now().UTC()

			o.AdvanceStatus = orders.AdvanceConfirmed
			if o.DueAmount == 0 {
				o.PaymentStatus = orders.PaymentPaid
				if o.Status == orders.StatusDelivered {
					o.Status = orders.StatusPaid
				}
			} else {
				o.PaymentStatus = orders.PaymentPendingDues
			}
			o.UpdatedAt = now
			if err := tx.Orders().Save(ctx, o, from); err != nil {
				return err
			}
			if err := tx.Orders().RecordApproval(ctx, shared.ApprovalLog{
				Module:     orders.Module,
				RefID:      o.ID,
				ActorID:    actor.ID,
				ActorRole:  actor.Role,
				Action:     shared.ApprovalAction(orders.EventConfirmAdvance),
				FromStatus: string(from),
				ToStatus:   string(o.Status),
				At:         now,
			}); err != nil {
				return err
			}
			out = o
			return nil
		})
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.committed(ctx, actor, out, orders.EventConfirmAdvance, from)
	s.dispatch(ctx, func(ctx context.Context) {
		s.notify(ctx, []shared.Role{shared.RoleAdmin}, notify.AdvanceConfirmed(actor.ID, out.ID, out.AdvanceAmount), out.PlacedBy)
	})
	return out, nil
}

// History lists collected payments. Salesmen only see their own collections.
func (s *Service) History(ctx context.Context, actor shared.Actor, filter HistoryFilter) ([]Record, shared.Pagination, error) {
	if err := actor.Require(shared.PermPaymentHistory); err != nil {
		return nil, shared.Pagination{}, err
	}
	if actor.Role == shared.RoleSalesman {
		filter.SalesmanID = actor.ID
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn()
		if err == nil || !db.IsSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: transaction retries exhausted: %w", shared.ErrConflict, err)
}

func (s *Service) accountantOf(ctx context.Context, o orders.Order) int64 {
	if o.AssignedWarehouse == 0 {
		return 0
	}
	staff, err := s.directory.WarehouseStaff(ctx, o.AssignedWarehouse)
	if err != nil {
		s.logger.WarnContext(ctx, "resolve warehouse staff", slog.String("order_id", o.ID), slog.Any("error", err))
		return 0
	}
	return staff.AccountantID
}

func (s *Service) committed(ctx context.Context, actor shared.Actor, o orders.Order, ev orders.Event, from orders.Status) {
	if s.recorder != nil {
		s.recorder.Transition(string(ev))
	}
	evt := events.OrderEvent{
		OrderID:    o.ID,
		Event:      string(ev),
		FromStatus: string(from),
		ToStatus:   string(o.Status),
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		At:         s.now().UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.WarnContext(ctx, "publish payment event", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

// dispatch runs delivery after commit, detached from request cancellation.
func (s *Service) dispatch(ctx context.Context, fn func(context.Context)) {
	if s.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	if !s.async {
		fn(detached)
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn(detached)
	}()
}

// notify fans p out; failures are logged and never reach the caller.
func (s *Service) notify(ctx context.Context, roles []shared.Role, p notify.Payload, extra ...int64) {
	var receivers []int64
	if len(roles) > 0 {
		ids, err := s.directory.IDsByRole(ctx, roles...)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve recipients", slog.String("type", string(p.Type)), slog.Any("error", err))
		}
		receivers = append(receivers, ids...)
	}
	receivers = append(receivers, extra...)
	if _, err := s.notifier.Notify(ctx, roles, p.To(receivers...)); err != nil {
		s.logger.WarnContext(ctx, "notification delivery", slog.String("type", string(p.Type)), slog.String("order_id", p.OrderID), slog.Any("error", err))
	}
}
