package notify

import (
	"context"
	"strings"
	"time"

	"github.com/feedflow/feedflow/internal/shared"
)

// Subscription is one push endpoint of one employee device.
type Subscription struct {
	ID         int64       `json:"id"`
	EmployeeID int64       `json:"employee_id"`
	Role       shared.Role `json:"role"`
	BrowserID  string      `json:"browser_id"`
	Endpoint   string      `json:"endpoint"`
	P256dh     string      `json:"p256dh"`
	Auth       string      `json:"auth"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

// SubscribeInput carries the browser's PushSubscription.
type SubscribeInput struct {
	BrowserID string     `json:"browser_id" validate:"required,max=128"`
	Endpoint  string     `json:"endpoint" validate:"required,url"`
	Keys      PushKeys   `json:"keys" validate:"required"`
	ExpiresAt *time.Time `json:"expiration_time,omitempty"`
}

// PushKeys are the client encryption keys.
type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// Service exposes the inbox and subscription management to employees.
type Service struct {
	store Store
	subs  SubscriptionStore
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, subs SubscriptionStore) *Service {
	return &Service{store: store, subs: subs, now: time.Now}
}

// List returns the actor's notifications, newest first.
func (s *Service) List(ctx context.Context, actor shared.Actor, unreadOnly bool, limit int) ([]Notification, error) {
	if err := actor.Require(shared.PermNotificationRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	return s.store.List(ctx, actor.ID, unreadOnly, limit)
}

// UnreadCount supports the client-side poll that backs realtime delivery.
func (s *Service) UnreadCount(ctx context.Context, actor shared.Actor) (int, error) {
	if err := actor.Require(shared.PermNotificationRead); err != nil {
		return 0, err
	}
	return s.store.UnreadCount(ctx, actor.ID)
}

// MarkRead flags the given notifications as read. Only the actor's rows change.
func (s *Service) MarkRead(ctx context.Context, actor shared.Actor, ids []int64) (int64, error) {
	if err := actor.Require(shared.PermNotificationRead); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, shared.Validationf("ids are required")
	}
	return s.store.MarkRead(ctx, actor.ID, ids)
}

// Subscribe registers or refreshes a device endpoint for the actor.
func (s *Service) Subscribe(ctx context.Context, actor shared.Actor, input SubscribeInput) (Subscription, error) {
	if err := actor.Require(shared.PermNotificationRead); err != nil {
		return Subscription{}, err
	}
	input.BrowserID = strings.TrimSpace(input.BrowserID)
	if input.BrowserID == "" || input.Endpoint == "" {
		return Subscription{}, shared.Validationf("browser_id and endpoint are required")
	}
	if input.Keys.P256dh == "" || input.Keys.Auth == "" {
		return Subscription{}, shared.Validationf("subscription keys are required")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return Subscription{}, shared.Validationf("subscription already expired")
	}
	sub := Subscription{
		EmployeeID: actor.ID,
		Role:       actor.Role,
		BrowserID:  input.BrowserID,
		Endpoint:   input.Endpoint,
		P256dh:     input.Keys.P256dh,
		Auth:       input.Keys.Auth,
		ExpiresAt:  input.ExpiresAt,
	}
	id, err := s.subs.Upsert(ctx, sub)
	if err != nil {
		return Subscription{}, err
	}
	sub.ID = id
	return sub, nil
}

// Unsubscribe removes one device endpoint of the actor.
func (s *Service) Unsubscribe(ctx context.Context, actor shared.Actor, browserID string) error {
	if err := actor.Require(shared.PermNotificationRead); err != nil {
		return err
	}
	browserID = strings.TrimSpace(browserID)
	if browserID == "" {
		return shared.Validationf("browser_id is required")
	}
	return s.subs.DeleteByBrowser(ctx, actor.ID, browserID)
}

// SweepExpired deletes subscriptions whose expiry passed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.subs.DeleteExpired(ctx, s.now())
}
