package orders

import (
	"context"
	"fmt"
	"slices"

	"github.com/feedflow/feedflow/internal/shared"
)

// Event names one lifecycle operation on an existing order.
type Event string

const (
	EventAmendAdvance    Event = "amend_advance"
	EventAttachProof     Event = "attach_proof"
	EventDelete          Event = "delete"
	EventForward         Event = "forward"
	EventAssignWarehouse Event = "assign_warehouse"
	EventApprove         Event = "approve"
	EventAdminApprove    Event = "admin_approve"
	EventDispatch        Event = "dispatch"
	EventDeliver         Event = "deliver"
	EventCancel          Event = "cancel"
	EventInvoice         Event = "invoice"
	EventApplyPayment    Event = "apply_payment"
	EventConfirmAdvance  Event = "confirm_advance"
)

// rule is one row of the transition table. An empty to keeps the status.
type rule struct {
	from []Status
	to   Status
	perm string
}

// live holds the statuses an order can still be cancelled from.
var live = liveStatuses()

func liveStatuses() []Status {
	out := make([]Status, 0, len(statuses))
	for _, st := range statuses {
		if !st.IsTerminal() {
			out = append(out, st)
		}
	}
	return out
}

var transitions = map[Event]rule{
	EventAmendAdvance:    {from: []Status{StatusPlaced}, perm: shared.PermOrderAmend},
	EventAttachProof:     {from: []Status{StatusPlaced}, perm: shared.PermOrderAmend},
	EventDelete:          {from: []Status{StatusPlaced}, perm: shared.PermOrderAmend},
	EventForward:         {from: []Status{StatusPlaced}, to: StatusForwardedToAuthorizer, perm: shared.PermOrderForward},
	EventAssignWarehouse: {from: []Status{StatusForwardedToAuthorizer}, to: StatusWarehouseAssigned, perm: shared.PermOrderAssignWarehouse},
	EventApprove:         {from: []Status{StatusWarehouseAssigned}, to: StatusApproved, perm: shared.PermOrderApprove},
	EventAdminApprove:    {from: []Status{StatusWarehouseAssigned}, to: StatusApproved, perm: shared.PermOrderApproveWarehouse},
	EventDispatch:        {from: []Status{StatusApproved}, to: StatusDispatched, perm: shared.PermOrderDispatch},
	EventDeliver:         {from: []Status{StatusDispatched}, to: StatusDelivered, perm: shared.PermOrderDeliver},
	EventCancel:          {from: live, to: StatusCancelled, perm: shared.PermOrderCancel},
	EventInvoice:         {from: []Status{StatusDelivered, StatusPaid}, perm: shared.PermOrderInvoice},
	EventApplyPayment:    {from: []Status{StatusApproved, StatusDispatched, StatusDelivered}, perm: shared.PermPaymentCollect},
	EventConfirmAdvance:  {from: []Status{StatusApproved, StatusDispatched, StatusDelivered}, perm: shared.PermPaymentConfirmAdvance},
}

// Target returns the status an event moves the order to, or the current one.
func Target(ev Event, current Status) Status {
	if r, ok := transitions[ev]; ok && r.to != "" {
		return r.to
	}
	return current
}

// Directory resolves employees for scoping and notification routing.
type Directory interface {
	IDsByRole(ctx context.Context, roles ...shared.Role) ([]int64, error)
	WarehouseStaff(ctx context.Context, warehouseID int64) (shared.WarehouseStaff, error)
}

// Guard is the single authorization point for order operations.
type Guard struct {
	directory Directory
}

// NewGuard constructs a Guard.
func NewGuard(directory Directory) *Guard {
	return &Guard{directory: directory}
}

// Check authorizes ev on o for actor: the role must carry the event's
// permission, the order must be within the actor's scope and its status must
// be one the event starts from.
func (g *Guard) Check(ctx context.Context, actor shared.Actor, o Order, ev Event) error {
	r, ok := transitions[ev]
	if !ok {
		return fmt.Errorf("orders: unknown event %q", ev)
	}
	if err := actor.Require(r.perm); err != nil {
		return err
	}
	if err := g.Visible(ctx, actor, o); err != nil {
		return err
	}
	if !slices.Contains(r.from, o.Status) {
		return &shared.ConflictError{Subject: "order " + o.ID, Action: string(ev), Current: string(o.Status)}
	}
	return nil
}

// Visible reports whether the order falls within the actor's scope.
// Salesmen see their own orders; plant heads and accountants see orders
// assigned to their warehouse.
func (g *Guard) Visible(ctx context.Context, actor shared.Actor, o Order) error {
	switch actor.Role {
	case shared.RoleSalesman:
		if o.PlacedBy != actor.ID {
			return fmt.Errorf("%w: order %s belongs to another salesman", shared.ErrForbidden, o.ID)
		}
	case shared.RolePlantHead, shared.RoleAccountant:
		if o.AssignedWarehouse == 0 {
			return fmt.Errorf("%w: order %s has no warehouse", shared.ErrForbidden, o.ID)
		}
		staff, err := g.directory.WarehouseStaff(ctx, o.AssignedWarehouse)
		if err != nil {
			return err
		}
		holder := staff.PlantHeadID
		if actor.Role == shared.RoleAccountant {
			holder = staff.AccountantID
		}
		if holder != actor.ID {
			return fmt.Errorf("%w: order %s is assigned to another warehouse", shared.ErrForbidden, o.ID)
		}
	}
	return nil
}
