// Package realtime pushes events to connected clients over websockets.
//
// Delivery is at-most-once: an event for a user with no live connection, or
// whose send buffer is full, is dropped. The persisted notification row is the
// durable record clients resync from.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis pub/sub channel shared by every instance.
const DefaultChannel = "feedflow:realtime"

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
)

// Envelope is the frame written to clients.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type busMessage struct {
	ChannelID int64    `json:"channel_id"`
	Frame     Envelope `json:"frame"`
}

type client struct {
	userID int64
	conn   net.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// Hub tracks live connections per user channel.
type Hub struct {
	mu      sync.RWMutex
	members map[int64]map[*client]struct{}
	redis   *redis.Client
	channel string
	logger  *slog.Logger
}

// NewHub builds a Hub. With a redis client, Emit fans out through pub/sub so
// every instance delivers to its own connections; Run must then be started.
func NewHub(logger *slog.Logger, rdb *redis.Client) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		members: make(map[int64]map[*client]struct{}),
		redis:   rdb,
		channel: DefaultChannel,
		logger:  logger,
	}
}

// Join registers conn on the user's channel and starts its writer.
func (h *Hub) Join(userID int64, conn net.Conn) func() {
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	set, ok := h.members[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.members[userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	return func() { h.leave(c) }
}

func (h *Hub) leave(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.members[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.members, c.userID)
			}
		}
		h.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wsutil.WriteServerText(c.conn, frame); err != nil {
				h.logger.Debug("realtime write", slog.Int64("user", c.userID), slog.Any("error", err))
				h.leave(c)
				return
			}
		}
	}
}

// Connected reports how many live connections the user holds on this instance.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[userID])
}

// Emit sends event to every connection on channelID. It never waits for the client.
func (h *Hub) Emit(ctx context.Context, channelID int64, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame := Envelope{Event: event, Payload: raw}
	if h.redis == nil {
		h.deliver(channelID, frame)
		return nil
	}
	msg, err := json.Marshal(busMessage{ChannelID: channelID, Frame: frame})
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, h.channel, msg).Err()
}

// deliver hands the frame to local connections, dropping it for full buffers.
func (h *Hub) deliver(channelID int64, frame Envelope) int {
	data, err := json.Marshal(frame)
	if err != nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.members[channelID] {
		select {
		case c.send <- data:
			sent++
		default:
			h.logger.Debug("realtime drop", slog.Int64("user", channelID), slog.String("event", frame.Event))
		}
	}
	return sent
}

// Run relays pub/sub messages to local connections until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	if h.redis == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	sub := h.redis.Subscribe(ctx, h.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var bm busMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				h.logger.Warn("realtime decode", slog.Any("error", err))
				continue
			}
			h.deliver(bm.ChannelID, bm.Frame)
		}
	}
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, set := range h.members {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.leave(c)
	}
}
