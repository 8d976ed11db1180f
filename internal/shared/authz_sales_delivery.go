package shared

// Order lifecycle permissions consulted by the transition guard.
const (
	PermOrderView             = "order.view"
	PermOrderPlace            = "order.place"
	PermOrderAmend            = "order.amend"
	PermOrderForward          = "order.forward"
	PermOrderAssignWarehouse  = "order.assign_warehouse"
	PermOrderApprove          = "order.approve"
	PermOrderApproveWarehouse = "order.approve_warehouse"
	PermOrderCancel           = "order.cancel"
	PermOrderDispatch         = "order.dispatch"
	PermOrderDeliver          = "order.deliver"
	PermOrderInvoice          = "order.invoice"

	PermPaymentCollect        = "payment.collect"
	PermPaymentConfirmAdvance = "payment.confirm_advance"
	PermPaymentHistory        = "payment.history"
)

// SalesScopes lists all permissions related to order placement and approval.
func SalesScopes() []string {
	return []string{
		PermOrderView,
		PermOrderPlace,
		PermOrderAmend,
		PermOrderForward,
		PermOrderAssignWarehouse,
		PermOrderApprove,
		PermOrderApproveWarehouse,
		PermOrderCancel,
	}
}

// DeliveryScopes lists all permissions related to dispatch, delivery and settlement.
func DeliveryScopes() []string {
	return []string{
		PermOrderDispatch,
		PermOrderDeliver,
		PermOrderInvoice,
		PermPaymentCollect,
		PermPaymentConfirmAdvance,
		PermPaymentHistory,
	}
}
