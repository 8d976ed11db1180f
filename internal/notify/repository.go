package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedflow/feedflow/internal/shared"
)

// PostgresStore implements Store and SubscriptionStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var notificationColumns = []string{"receiver_id", "sender_id", "order_id", "type", "title", "message", "read", "created_at"}

// InsertBatch copies every row in one round trip.
func (s *PostgresStore) InsertBatch(ctx context.Context, rows []Notification) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"notifications"}, notificationColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.ReceiverID, r.SenderID, r.OrderID, string(r.Type), r.Title, r.Message, false, r.CreatedAt}, nil
		}))
	if err != nil {
		return n, fmt.Errorf("copy notifications: %w", err)
	}
	return n, nil
}

// List returns a receiver's notifications, newest first.
func (s *PostgresStore) List(ctx context.Context, receiverID int64, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, receiver_id, sender_id, order_id, type, title, message, read, created_at
FROM notifications
WHERE receiver_id = $1 AND ($2::boolean IS FALSE OR read = FALSE)
ORDER BY created_at DESC, id DESC
LIMIT $3`, receiverID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.ReceiverID, &n.SenderID, &n.OrderID, &typ, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount counts unread rows for a receiver.
func (s *PostgresStore) UnreadCount(ctx context.Context, receiverID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE receiver_id = $1 AND read = FALSE`, receiverID).Scan(&count)
	return count, err
}

// MarkRead flips the read flag on the receiver's rows.
func (s *PostgresStore) MarkRead(ctx context.Context, receiverID int64, ids []int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE receiver_id = $1 AND id = ANY($2) AND read = FALSE`, receiverID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const subscriptionColumns = `id, employee_id, role, browser_id, endpoint, p256dh, auth, expires_at`

// Upsert inserts or refreshes the subscription keyed by employee and browser.
func (s *PostgresStore) Upsert(ctx context.Context, sub Subscription) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO push_subscriptions (employee_id, role, browser_id, endpoint, p256dh, auth, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (employee_id, browser_id) DO UPDATE
SET role = EXCLUDED.role, endpoint = EXCLUDED.endpoint, p256dh = EXCLUDED.p256dh,
    auth = EXCLUDED.auth, expires_at = EXCLUDED.expires_at
RETURNING id`, sub.EmployeeID, string(sub.Role), sub.BrowserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.ExpiresAt).Scan(&id)
	return id, err
}

// Match returns live subscriptions held by any role or any employee given.
func (s *PostgresStore) Match(ctx context.Context, roles []shared.Role, employeeIDs []int64) ([]Subscription, error) {
	if len(roles) == 0 && len(employeeIDs) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	if employeeIDs == nil {
		employeeIDs = []int64{}
	}
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions
WHERE (role = ANY($1) OR employee_id = ANY($2)) AND (expires_at IS NULL OR expires_at > NOW())
ORDER BY id`, names, employeeIDs)
}

// ForEmployee returns every live subscription of one employee.
func (s *PostgresStore) ForEmployee(ctx context.Context, employeeID int64) ([]Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions
WHERE employee_id = $1 AND (expires_at IS NULL OR expires_at > NOW())
ORDER BY id`, employeeID)
}

// Delete removes one subscription by id.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	return err
}

// DeleteByBrowser removes an employee's subscription for one browser.
func (s *PostgresStore) DeleteByBrowser(ctx context.Context, employeeID int64, browserID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE employee_id = $1 AND browser_id = $2`, employeeID, browserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("subscription %s", browserID)
	}
	return nil
}

// DeleteExpired removes subscriptions that expired before now.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, sql string, args ...any) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var role string
		var expires pgtype.Timestamptz
		if err := rows.Scan(&sub.ID, &sub.EmployeeID, &role, &sub.BrowserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &expires); err != nil {
			return nil, err
		}
		sub.Role = shared.Role(role)
		if expires.Valid {
			t := expires.Time
			sub.ExpiresAt = &t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
