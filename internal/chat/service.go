// Package chat relays direct messages between employees. Messages are
// delivered over the realtime hub; a receiver who has not read a message
// within the unread delay gets one push notification for it.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/shared"
)

// TaskUnreadCheck is the asynq task type of the delayed unread check.
const TaskUnreadCheck = "chat:unread_check"

const (
	maxTextRunes  = 2000
	defaultDelay  = time.Second
	defaultTTL    = 24 * time.Hour
	unreadKeyBase = "feedflow:chat:unread:"
)

// Message is one direct message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// UnreadPayload identifies the marker an unread check inspects.
type UnreadPayload struct {
	MessageID  string `json:"message_id"`
	ReceiverID int64  `json:"receiver_id"`
}

// Emitter delivers realtime frames.
type Emitter interface {
	Emit(ctx context.Context, channelID int64, event string, payload any) error
}

// Enqueuer schedules background tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Pusher sends a push notification to one employee's devices.
type Pusher interface {
	PushOne(ctx context.Context, employeeID int64, p notify.Payload) (notify.Report, error)
}

// Names resolves employee display names.
type Names interface {
	EmployeeName(ctx context.Context, id int64) (string, error)
}

// Service sends messages and runs unread checks.
type Service struct {
	redis   *redis.Client
	emitter Emitter
	queue   Enqueuer
	pusher  Pusher
	names   Names
	delay   time.Duration
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithUnreadDelay sets how long a message may stay unread before a push.
func WithUnreadDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithMarkerTTL bounds how long an unread marker survives without a check.
func WithMarkerTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the chat service.
func NewService(rdb *redis.Client, emitter Emitter, queue Enqueuer, pusher Pusher, names Names, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		redis:   rdb,
		emitter: emitter,
		queue:   queue,
		pusher:  pusher,
		names:   names,
		delay:   defaultDelay,
		ttl:     defaultTTL,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers text to receiverID and schedules the unread check.
func (s *Service) Send(ctx context.Context, sender shared.Actor, receiverID int64, text string) (Message, error) {
	if err := sender.Require(shared.PermChatSend); err != nil {
		return Message{}, err
	}
	text = strings.TrimSpace(text)
	switch {
	case receiverID <= 0:
		return Message{}, shared.Validationf("receiver_id is required")
	case receiverID == sender.ID:
		return Message{}, shared.Validationf("cannot message yourself")
	case text == "":
		return Message{}, shared.Validationf("text is required")
	case utf8.RuneCountInString(text) > maxTextRunes:
		return Message{}, shared.Validationf("text exceeds %d characters", maxTextRunes)
	}

	msg := Message{
		ID:         uuid.NewString(),
		SenderID:   sender.ID,
		SenderName: s.senderName(ctx, sender),
		ReceiverID: receiverID,
		Text:       text,
		SentAt:     s.now().UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	if err := s.redis.Set(ctx, unreadKey(receiverID, msg.ID), raw, s.ttl).Err(); err != nil {
		return Message{}, fmt.Errorf("chat: store unread marker: %w", err)
	}

	if err := s.emitter.Emit(ctx, receiverID, string(notify.TypeChatMessage), msg); err != nil {
		s.logger.WarnContext(ctx, "chat emit", slog.String("message_id", msg.ID), slog.Any("error", err))
	}

	task, err := NewUnreadCheckTask(UnreadPayload{MessageID: msg.ID, ReceiverID: receiverID})
	if err != nil {
		return Message{}, err
	}
	if _, err := s.queue.EnqueueContext(ctx, task, asynq.ProcessIn(s.delay), asynq.TaskID(msg.ID)); err != nil {
		s.logger.WarnContext(ctx, "chat enqueue unread check", slog.String("message_id", msg.ID), slog.Any("error", err))
	}
	return msg, nil
}

// MarkRead clears the unread marker of a message addressed to reader.
func (s *Service) MarkRead(ctx context.Context, reader shared.Actor, messageID string) error {
	if err := reader.Require(shared.PermChatSend); err != nil {
		return err
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return shared.Validationf("invalid message id %q", messageID)
	}
	if err := s.redis.Del(ctx, unreadKey(reader.ID, messageID)).Err(); err != nil {
		return fmt.Errorf("chat: clear unread marker: %w", err)
	}
	return nil
}

// CheckUnread consumes the marker if it is still present and pushes the
// message once. It reports whether a push was attempted.
func (s *Service) CheckUnread(ctx context.Context, p UnreadPayload) (bool, error) {
	raw, err := s.redis.GetDel(ctx, unreadKey(p.ReceiverID, p.MessageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("chat: consume unread marker: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return false, fmt.Errorf("chat: decode unread marker: %w", err)
	}
	report, err := s.pusher.PushOne(ctx, msg.ReceiverID, notify.ChatMessage(msg.SenderID, msg.SenderName, msg.Text))
	if err != nil {
		return true, err
	}
	s.logger.DebugContext(ctx, "chat unread pushed",
		slog.String("message_id", msg.ID),
		slog.Int64("pushed", report.Pushed),
		slog.Int64("failed", report.Failed))
	return true, nil
}

func (s *Service) senderName(ctx context.Context, sender shared.Actor) string {
	if s.names != nil {
		name, err := s.names.EmployeeName(ctx, sender.ID)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			s.logger.DebugContext(ctx, "chat sender name", slog.Int64("sender_id", sender.ID), slog.Any("error", err))
		}
	}
	return string(sender.Role)
}

// NewUnreadCheckTask builds the delayed unread check task.
func NewUnreadCheckTask(p UnreadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUnreadCheck, data), nil
}

func unreadKey(receiverID int64, messageID string) string {
	return fmt.Sprintf("%s%d:%s", unreadKeyBase, receiverID, messageID)
}
