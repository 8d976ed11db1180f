// Package notify persists and delivers user notifications over the inbox,
// realtime and web push channels.
package notify

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Type is the closed set of notification codes.
type Type string

const (
	TypeOrderPlaced         Type = "order_placed"
	TypeOrderForwarded      Type = "order_forwarded"
	TypeWarehouseAssigned   Type = "warehouse_assigned"
	TypeOrderApproved       Type = "order_approved"
	TypeAdvanceProofPending Type = "advance_proof_pending"
	TypeAdvanceConfirmed    Type = "advance_confirmed"
	TypeOrderDispatched     Type = "order_dispatched"
	TypeOrderDelivered      Type = "order_delivered"
	TypeOrderCancelled      Type = "order_cancelled"
	TypePaymentReceived     Type = "payment_received"
	TypeChatMessage         Type = "chat_message"
)

var titles = map[Type]string{
	TypeOrderPlaced:         "New order placed",
	TypeOrderForwarded:      "Order forwarded for authorization",
	TypeWarehouseAssigned:   "Warehouse assigned",
	TypeOrderApproved:       "Order approved",
	TypeAdvanceProofPending: "Advance payment awaiting confirmation",
	TypeAdvanceConfirmed:    "Advance payment confirmed",
	TypeOrderDispatched:     "Order dispatched",
	TypeOrderDelivered:      "Order delivered",
	TypeOrderCancelled:      "Order cancelled",
	TypePaymentReceived:     "Payment received",
	TypeChatMessage:         "New message",
}

// IsValid reports whether t belongs to the closed set.
func (t Type) IsValid() bool {
	_, ok := titles[t]
	return ok
}

// Title returns the fixed heading for the type.
func (t Type) Title() string {
	return titles[t]
}

// Payload is the single shape carried by every notification type.
type Payload struct {
	Type        Type    `json:"type"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	SenderID    int64   `json:"sender_id"`
	ReceiverIDs []int64 `json:"-"`
	OrderID     string  `json:"order_id,omitempty"`
}

// To returns a copy of p addressed to receivers.
func (p Payload) To(receivers ...int64) Payload {
	p.ReceiverIDs = append([]int64(nil), receivers...)
	return p
}

// Event is the realtime frame body for one recipient.
type Event struct {
	OrderID  string `json:"order_id,omitempty"`
	Message  string `json:"message"`
	Type     Type   `json:"type"`
	SenderID int64  `json:"sender_id"`
}

// Event returns the realtime body of the payload.
func (p Payload) Event() Event {
	return Event{OrderID: p.OrderID, Message: p.Message, Type: p.Type, SenderID: p.SenderID}
}

// Notification is one persisted inbox row.
type Notification struct {
	ID         int64     `json:"id"`
	ReceiverID int64     `json:"receiver_id"`
	SenderID   int64     `json:"sender_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

var printer = message.NewPrinter(language.English)

func build(t Type, sender int64, orderID, format string, args ...any) Payload {
	return Payload{
		Type:     t,
		Title:    t.Title(),
		Message:  printer.Sprintf(format, args...),
		SenderID: sender,
		OrderID:  orderID,
	}
}

// OrderPlaced announces a new order to sales managers.
func OrderPlaced(sender int64, orderID, party string, total int64) Payload {
	return build(TypeOrderPlaced, sender, orderID, "Order %s for %s placed, total %d", orderID, party, total)
}

// OrderForwarded announces that a manager forwarded an order.
func OrderForwarded(sender int64, orderID, party string) Payload {
	return build(TypeOrderForwarded, sender, orderID, "Order %s for %s is awaiting warehouse assignment", orderID, party)
}

// WarehouseAssigned announces the warehouse chosen for an order.
func WarehouseAssigned(sender int64, orderID string, warehouseID int64) Payload {
	return build(TypeWarehouseAssigned, sender, orderID, "Order %s assigned to warehouse %d", orderID, warehouseID)
}

// OrderApproved announces a committed approval.
func OrderApproved(sender int64, orderID string, warehouseID int64) Payload {
	return build(TypeOrderApproved, sender, orderID, "Order %s approved, stock committed at warehouse %d", orderID, warehouseID)
}

// AdvanceProofPending asks the warehouse accountant to verify an advance proof.
func AdvanceProofPending(sender int64, orderID string, advance int64) Payload {
	return build(TypeAdvanceProofPending, sender, orderID, "Advance payment of %d on order %s needs confirmation", advance, orderID)
}

// AdvanceConfirmed announces an accountant confirmation.
func AdvanceConfirmed(sender int64, orderID string, advance int64) Payload {
	return build(TypeAdvanceConfirmed, sender, orderID, "Advance payment of %d on order %s confirmed", advance, orderID)
}

// OrderDispatched announces that goods left the warehouse.
func OrderDispatched(sender int64, orderID, vehicle string) Payload {
	return build(TypeOrderDispatched, sender, orderID, "Order %s dispatched on vehicle %s", orderID, vehicle)
}

// OrderDelivered announces a delivery.
func OrderDelivered(sender int64, orderID string, due int64) Payload {
	return build(TypeOrderDelivered, sender, orderID, "Order %s delivered, %d due", orderID, due)
}

// OrderCancelled announces a cancellation with its reason.
func OrderCancelled(sender int64, orderID, reason string) Payload {
	return build(TypeOrderCancelled, sender, orderID, "Order %s cancelled: %s", orderID, reason)
}

// PaymentReceived announces a collected payment.
func PaymentReceived(sender int64, orderID string, amount, due int64) Payload {
	return build(TypePaymentReceived, sender, orderID, "Payment of %d received on order %s, %d remaining", amount, orderID, due)
}

// ChatMessage announces an unread direct message.
func ChatMessage(sender int64, senderName, text string) Payload {
	if len([]rune(text)) > 80 {
		text = string([]rune(text)[:80]) + "..."
	}
	return build(TypeChatMessage, sender, "", "%s: %s", senderName, text)
}
