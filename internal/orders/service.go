package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/feedflow/feedflow/internal/events"
	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/parties"
	"github.com/feedflow/feedflow/internal/platform/db"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/internal/stock"
)

// Module is the approval log and idempotency namespace of orders.
const Module = "orders"

const maxTxAttempts = 3

// RepositoryPort abstracts order persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	History(ctx context.Context, id string) ([]shared.ApprovalLog, error)
}

// TxRepository exposes the order primitives available inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, o Order) error
	// Lock re-reads the order and holds its row lock until commit.
	Lock(ctx context.Context, id string) (Order, error)
	// Save writes o only while the stored status still equals expected.
	Save(ctx context.Context, o Order, expected Status) error
	Delete(ctx context.Context, id string, expected Status) error
	ProductNames(ctx context.Context, ids []int64) (map[int64]string, error)
	Parties() parties.TxRepository
	Stock() stock.TxRepository
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
}

// Allocator hands out order numbers.
type Allocator interface {
	Next(ctx context.Context) (string, error)
}

// Notifier fans a payload out to recipients.
type Notifier interface {
	Notify(ctx context.Context, roles []shared.Role, p notify.Payload) (notify.Report, error)
}

// Publisher emits committed lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, evt events.OrderEvent) error
}

// DocumentStore keeps uploaded proofs and invoices.
type DocumentStore interface {
	Put(ctx context.Context, filename, contentType string, blob []byte) (string, error)
}

// IdempotencyPort claims client request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Recorder counts committed transitions.
type Recorder interface {
	Transition(event string)
}

// Upload is a document attached to an order.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service runs the order lifecycle.
type Service struct {
	repo          RepositoryPort
	sequence      Allocator
	directory     Directory
	guard         *Guard
	notifier      Notifier
	publisher     Publisher
	documents     DocumentStore
	idempotency   IdempotencyPort
	recorder      Recorder
	creditRestore bool
	async         bool
	logger        *slog.Logger
	now           func() time.Time
	inflight      sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher streams committed events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithDocuments enables proof and invoice uploads.
func WithDocuments(d DocumentStore) Option {
	return func(s *Service) { s.documents = d }
}

// WithIdempotency enables client supplied idempotency keys on placement.
func WithIdempotency(p IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = p }
}

// WithRecorder counts transitions.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithCreditRestore returns an order's due amount to the party limit when the
// order is cancelled or deleted.
func WithCreditRestore(enabled bool) Option {
	return func(s *Service) { s.creditRestore = enabled }
}

// WithSyncNotifications delivers notifications before the call returns.
func WithSyncNotifications() Option {
	return func(s *Service) { s.async = false }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the order lifecycle.
func NewService(repo RepositoryPort, sequence Allocator, directory Directory, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		sequence:  sequence,
		directory: directory,
		guard:     NewGuard(directory),
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

// Guard returns the transition guard shared with the payment ledger.
func (s *Service) Guard() *Guard {
	return s.guard
}

// Drain waits for in-flight notifications.
func (s *Service) Drain() {
	s.inflight.Wait()
}

// ============================================================================
// PLACEMENT
// ============================================================================

// Place creates an order for a party. The order number is allocated before
// anything is written; a failed allocation aborts placement.
func (s *Service) Place(ctx context.Context, actor shared.Actor, req PlaceRequest) (Order, error) {
	if err := actor.Require(shared.PermOrderPlace); err != nil {
		return Order{}, err
	}
	if err := req.Validate(); err != nil {
		return Order{}, err
	}
	gross, total, err := req.Totals()
	if err != nil {
		return Order{}, err
	}
	if req.AdvanceAmount > total {
		return Order{}, shared.Validationf("advance_amount %d exceeds total %d", req.AdvanceAmount, total)
	}
	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, Module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Order{}, fmt.Errorf("%w: %w", shared.ErrConflict, err)
			}
			return Order{}, fmt.Errorf("claim idempotency key: %w", err)
		}
	}

	id, err := s.sequence.Next(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("allocate order number: %w", err)
	}

	now := s.now().UTC()
	var order Order
	err = s.retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			party, err := tx.Parties().LockParty(ctx, req.PartyID)
			if err != nil {
				return err
			}
			if party.Status != parties.StatusActive {
				return shared.Validationf("party %d is %s", party.ID, party.Status)
			}
			ids := make([]int64, len(req.Items))
			for i, it := range req.Items {
				ids[i] = it.ProductID
			}
			names, err := tx.ProductNames(ctx, ids)
			if err != nil {
				return err
			}
			items := make([]Item, len(req.Items))
			for i, it := range req.Items {
				name, ok := names[it.ProductID]
				if !ok {
					return shared.NotFoundf("product %d", it.ProductID)
				}
				items[i] = Item{
					ProductID:   it.ProductID,
					ProductName: name,
					Quantity:    it.Quantity,
					UnitPrice:   it.UnitPrice,
					Amount:      it.Quantity * it.UnitPrice,
				}
			}
			order = Order{
				ID:          id,
				PartyID:     party.ID,
				Party:       party.Snapshot(),
				Items:       items,
				GrossAmount: gross,
				Discount:    req.Discount,
				TotalAmount: total,
				Status:      StatusPlaced,
				PlacedBy:    actor.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			order.settleAdvance(req.AdvanceAmount)
			if err := order.CheckAmounts(); err != nil {
				return err
			}
			if err := tx.Insert(ctx, order); err != nil {
				return err
			}
			if order.DueAmount > 0 {
				if err := tx.Parties().AdjustLimit(ctx, party.ID, -order.DueAmount); err != nil {
					return err
				}
			}
			return tx.RecordApproval(ctx, shared.ApprovalLog{
				Module:    Module,
				RefID:     order.ID,
				ActorID:   actor.ID,
				ActorRole: actor.Role,
				Action:    "place",
				ToStatus:  string(StatusPlaced),
				At:        now,
			})
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.committed(ctx, actor, order, "place", "")
	s.dispatch(ctx, func(ctx context.Context) {
		s.notifyRoles(ctx, []shared.Role{shared.RoleSalesManager, shared.RoleAdmin},
			notify.OrderPlaced(actor.ID, order.ID, order.Party.CompanyName, order.TotalAmount))
	})
	return order, nil
}

// AttachAdvanceProof uploads the proof of an advance payment while the order
// is still Placed.
func (s *Service) AttachAdvanceProof(ctx context.Context, actor shared.Actor, id string, upload Upload) (Order, error) {
	if s.documents == nil {
		return Order{}, shared.Validationf("document uploads are not configured")
	}
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return Order{}, err
	}
	if err := s.guard.Check(ctx, actor, current, EventAttachProof); err != nil {
		return Order{}, err
	}
	if current.AdvanceAmount == 0 {
		return Order{}, shared.Validationf("order %s has no advance amount", id)
	}
	url, err := s.documents.Put(ctx, upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return Order{}, err
	}
	return s.transition(ctx, actor, id, EventAttachProof, "", func(_ context.Context, _ TxRepository, o *Order) error {
		if o.AdvanceAmount == 0 {
			return shared.Validationf("order %s has no advance amount", id)
		}
		o.AdvanceProofURL = url
		o.AdvanceStatus = AdvancePending
		return nil
	})
}

// AmendAdvance changes the advance amount of a Placed order, keeping
// advance plus due equal to the total and moving the party limit by the due delta.
func (s *Service) AmendAdvance(ctx context.Context, actor shared.Actor, id string, advance int64) (Order, error) {
	if advance < 0 {
		return Order{}, shared.Validationf("advance_amount must not be negative")
	}
	return s.transition(ctx, actor, id, EventAmendAdvance, "", func(ctx context.Context, tx TxRepository, o *Order) error {
		if advance > o.TotalAmount {
			return shared.Validationf("advance_amount %d exceeds total %d", advance, o.TotalAmount)
		}
		oldDue := o.DueAmount
		proof := o.AdvanceProofURL
		o.settleAdvance(advance)
		if advance == 0 {
			o.AdvanceProofURL = ""
		} else {
			o.AdvanceProofURL = proof
		}
		if delta := oldDue - o.DueAmount; delta != 0 {
			if err := tx.Parties().AdjustLimit(ctx, o.PartyID, delta); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a Placed order.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id string) error {
	_, err := s.transition(ctx, actor, id, EventDelete, "", func(ctx context.Context, tx TxRepository, o *Order) error {
		if err := tx.Delete(ctx, o.ID, o.Status); err != nil {
			return err
		}
		return s.restoreCredit(ctx, tx, *o)
	})
	return err
}

// ============================================================================
// APPROVAL PIPELINE
// ============================================================================

// Forward hands a Placed order to the authorizers.
func (s *Service) Forward(ctx context.Context, actor shared.Actor, id string) (Order, error) {
	order, err := s.transition(ctx, actor, id, EventForward, "", func(_ context.Context, _ TxRepository, o *Order) error {
		o.ForwardedByManager = actor.ID
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, func(ctx context.Context) {
		s.notifyRoles(ctx, []shared.Role{shared.RoleSalesAuthorizer, shared.RoleAdmin},
			notify.OrderForwarded(actor.ID, order.ID, order.Party.CompanyName))
	})
	return order, nil
}

// AssignWarehouse chooses the warehouse that will fulfil the order.
func (s *Service) AssignWarehouse(ctx context.Context, actor shared.Actor, id string, warehouseID int64) (Order, error) {
	if warehouseID <= 0 {
		return Order{}, shared.Validationf("warehouse_id is required")
	}
	if err := actor.Require(shared.PermOrderAssignWarehouse); err != nil {
		return Order{}, err
	}
	staff, err := s.directory.WarehouseStaff(ctx, warehouseID)
	if err != nil {
		return Order{}, err
	}
	order, err := s.transition(ctx, actor, id, EventAssignWarehouse, "", func(_ context.Context, _ TxRepository, o *Order) error {
		o.ForwardedByAuthorizer = actor.ID
		o.AssignedWarehouse = warehouseID
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, func(ctx context.Context) {
		s.notifyRoles(ctx, []shared.Role{shared.RoleAdmin},
			notify.WarehouseAssigned(actor.ID, order.ID, warehouseID), staff.PlantHeadID)
	})
	return order, nil
}

// ApproveToWarehouse is the authorizer approval that commits stock.
func (s *Service) ApproveToWarehouse(ctx context.Context, actor shared.Actor, id string) (Order, error) {
	return s.approve(ctx, actor, id, EventApprove)
}

// ApproveWarehouse is the admin approval that commits stock.
func (s *Service) ApproveWarehouse(ctx context.Context, actor shared.Actor, id string) (Order, error) {
	return s.approve(ctx, actor, id, EventAdminApprove)
}

// approve re-reads the order under lock, checks every line against the
// assigned warehouse and decrements them all in one batch, or none.
func (s *Service) approve(ctx context.Context, actor shared.Actor, id string, ev Event) (Order, error) {
	var proofRouted bool
	order, err := s.transition(ctx, actor, id, ev, "", func(ctx context.Context, tx TxRepository, o *Order) error {
		if err := stock.Commit(ctx, tx.Stock(), o.AssignedWarehouse, o.Lines()); err != nil {
			return err
		}
		o.ApprovedBy = actor.ID
		proofRouted = false
		if o.AdvanceProofURL != "" && o.AdvanceStatus == AdvancePending {
			o.AdvanceStatus = AdvanceSentForApproval
			o.PaymentStatus = PaymentConfirmationPending
			proofRouted = true
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, func(ctx context.Context) {
		staff, err := s.directory.WarehouseStaff(ctx, order.AssignedWarehouse)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve warehouse staff", slog.String("order_id", order.ID), slog.Any("error", err))
		}
		if proofRouted && staff.AccountantID != 0 {
			s.notifyRoles(ctx, nil, notify.AdvanceProofPending(actor.ID, order.ID, order.AdvanceAmount), staff.AccountantID)
		}
		s.notifyRoles(ctx, []shared.Role{shared.RoleAdmin},
			notify.OrderApproved(actor.ID, order.ID, order.AssignedWarehouse), staff.PlantHeadID)
	})
	return order, nil
}

// ============================================================================
// FULFILMENT
// ============================================================================

// Dispatch records the vehicle carrying an Approved order.
func (s *Service) Dispatch(ctx context.Context, actor shared.Actor, id string, req DispatchRequest) (Order, error) {
	req.VehicleNumber = strings.TrimSpace(req.VehicleNumber)
	if req.VehicleNumber == "" || strings.TrimSpace(req.DriverName) == "" {
		return Order{}, shared.Validationf("vehicle_number and driver_name are required")
	}
	order, err := s.transition(ctx, actor, id, EventDispatch, req.VehicleNumber, func(_ context.Context, _ TxRepository, o *Order) error {
		o.Dispatch = &Dispatch{
			VehicleNumber: req.VehicleNumber,
			DriverName:    strings.TrimSpace(req.DriverName),
			DriverPhone:   strings.TrimSpace(req.DriverPhone),
			DispatchedBy:  actor.ID,
			DispatchedAt:  s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, func(ctx context.Context) {
		s.notifyRoles(ctx, []shared.Role{shared.RoleAdmin},
			notify.OrderDispatched(actor.ID, order.ID, order.Dispatch.VehicleNumber), order.PlacedBy)
	})
	return order, nil
}

// Deliver marks a Dispatched order delivered. A fully paid order settles to Paid.
func (s *Service) Deliver(ctx context.Context, actor shared.Actor, id string) (Order, error) {
	order, err := s.transition(ctx, actor, id, EventDeliver, "", func(_ context.Context, _ TxRepository, o *Order) error {
		at := s.now().UTC()
		o.DeliveredAt = &at
		if o.PaymentStatus == PaymentPaid {
			o.Status = StatusPaid
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, func(ctx context.Context) {
		staff, err := s.directory.WarehouseStaff(ctx, order.AssignedWarehouse)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve warehouse staff", slog.String("order_id", order.ID), slog.Any("error", err))
		}
		s.notifyRoles(ctx, []shared.Role{shared.RoleAdmin},
			notify.OrderDelivered(actor.ID, order.ID, order.DueAmount), order.PlacedBy, staff.AccountantID)
	})
	return order, nil
}

// Cancel moves any live order to Cancelled. Cancelling a cancelled order is a
// conflict and leaves the first cancellation untouched.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id, reason string) (Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, shared.Validationf("cancellation reason is required")
	}
	order, err := s.transition(ctx, actor, id, EventCancel, reason, func(ctx context.Context, tx TxRepository, o *Order) error {
		if o.Status == StatusApproved {
			if err := stock.Release(ctx, tx.Stock(), o.AssignedWarehouse, o.Lines()); err != nil {
				return err
			}
		}
		if err := s.restoreCredit(ctx, tx, *o); err != nil {
			return err
		}
		o.CanceledBy = &Cancellation{Role: actor.Role, UserID: actor.ID, Reason: reason, Date: s.now().UTC()}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, func(ctx context.Context) {
		extra := []int64{order.PlacedBy}
		if order.AssignedWarehouse != 0 {
			if staff, err := s.directory.WarehouseStaff(ctx, order.AssignedWarehouse); err == nil {
				extra = append(extra, staff.PlantHeadID)
			}
		}
		s.notifyRoles(ctx, []shared.Role{shared.RoleAdmin}, notify.OrderCancelled(actor.ID, order.ID, reason), extra...)
	})
	return order, nil
}

// AttachInvoice stores the invoice document of a delivered order.
func (s *Service) AttachInvoice(ctx context.Context, actor shared.Actor, id string, upload Upload) (Order, error) {
	if s.documents == nil {
		return Order{}, shared.Validationf("document uploads are not configured")
	}
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return Order{}, err
	}
	if err := s.guard.Check(ctx, actor, current, EventInvoice); err != nil {
		return Order{}, err
	}
	url, err := s.documents.Put(ctx, upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return Order{}, err
	}
	return s.transition(ctx, actor, id, EventInvoice, "", func(_ context.Context, _ TxRepository, o *Order) error {
		o.InvoiceURL = url
		return nil
	})
}

// ============================================================================
// QUERIES
// ============================================================================

// Get returns one order visible to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id string) (Order, error) {
	if err := actor.Require(shared.PermOrderView); err != nil {
		return Order{}, err
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if err := s.guard.Visible(ctx, actor, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// List returns the orders within the actor's scope.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Order, shared.Pagination, error) {
	if err := actor.Require(shared.PermOrderView); err != nil {
		return nil, shared.Pagination{}, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, shared.Validationf("unknown status %q", filter.Status)
	}
	switch actor.Role {
	case shared.RoleSalesman:
		filter.PlacedBy = actor.ID
	case shared.RolePlantHead, shared.RoleAccountant:
		filter.StaffID = actor.ID
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// History returns the approval trail of an order visible to the actor.
func (s *Service) History(ctx context.Context, actor shared.Actor, id string) ([]shared.ApprovalLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// ============================================================================
// HELPERS
// ============================================================================

// mutation applies the effect of an event to the locked order.
type mutation func(ctx context.Context, tx TxRepository, o *Order) error

// transition re-reads the order under lock, runs the guard against the fresh
// status, applies fn, writes the guarded update and the approval log in the
// same transaction, then publishes the committed event.
func (s *Service) transition(ctx context.Context, actor shared.Actor, id string, ev Event, note string, fn mutation) (Order, error) {
	var out Order
	var from Status
	err := s.retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			o, err := tx.Lock(ctx, id)
			if err != nil {
				return err
			}
			if err := s.guard.Check(ctx, actor, o, ev); err != nil {
				return err
			}
			from = o.Status
			if err := fn(ctx, tx, &o); err != nil {
				return err
			}
			if o.Status == from {
				o.Status = Target(ev, from)
			}
			if err := o.CheckAmounts(); err != nil {
				return err
			}
			now := s.now().UTC()
			if ev != EventDelete {
				o.UpdatedAt = now
				if err := tx.Save(ctx, o, from); err != nil {
					return err
				}
			}
			if err := tx.RecordApproval(ctx, shared.ApprovalLog{
				Module:     Module,
				RefID:      o.ID,
				ActorID:    actor.ID,
				ActorRole:  actor.Role,
				Action:     shared.ApprovalAction(ev),
				FromStatus: string(from),
				ToStatus:   string(o.Status),
				Note:       note,
				At:         now,
			}); err != nil {
				return err
			}
			out = o
			return nil
		})
	})
	if err != nil {
		return Order{}, err
	}
	s.committed(ctx, actor, out, ev, from)
	return out, nil
}

// retry reruns fn when the transaction lost a serialization race so the
// loser re-reads the committed state.
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

func (s *Service) restoreCredit(ctx context.Context, tx TxRepository, o Order) error {
	if !s.creditRestore || o.DueAmount == 0 {
		return nil
	}
	return tx.Parties().AdjustLimit(ctx, o.PartyID, o.DueAmount)
}

func (s *Service) committed(ctx context.Context, actor shared.Actor, o Order, ev Event, from Status) {
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
		s.logger.WarnContext(ctx, "publish order event", slog.String("order_id", o.ID), slog.String("event", string(ev)), slog.Any("error", err))
	}
}

// dispatch runs notification delivery after the transition committed. It is
// detached from request cancellation and never reports back to the caller.
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

// notifyRoles resolves every employee holding roles, adds the explicit
// recipients and fans the payload out. Failures are logged only.
func (s *Service) notifyRoles(ctx context.Context, roles []shared.Role, p notify.Payload, extra ...int64) {
	var receivers []int64
	if len(roles) > 0 {
		ids, err := s.directory.IDsByRole(ctx, roles...)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve recipients", slog.String("type", string(p.Type)), slog.Any("error", err))
		}
		receivers = append(receivers, ids...)
	}
	receivers = append(receivers, extra...)
	report, err := s.notifier.Notify(ctx, roles, p.To(receivers...))
	if err != nil {
		s.logger.WarnContext(ctx, "notification delivery", slog.String("type", string(p.Type)), slog.String("order_id", p.OrderID), slog.Any("error", err))
		return
	}
	s.logger.DebugContext(ctx, "notification delivered",
		slog.String("type", string(p.Type)),
		slog.String("order_id", p.OrderID),
		slog.Int("recipients", report.Recipients),
		slog.Int64("pushed", report.Pushed),
		slog.Int64("removed", report.Removed))
}
