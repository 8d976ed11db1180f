package realtime

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gobwas/ws/wsutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderEvent struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

func readFrame(t *testing.T, conn net.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestEmitDeliversToJoinedChannel(t *testing.T) {
	hub := NewHub(nil, nil)
	server, clientConn := net.Pipe()
	defer clientConn.Close()

	leave := hub.Join(7, server)
	defer leave()
	require.Equal(t, 1, hub.Connected(7))

	require.NoError(t, hub.Emit(context.Background(), 7, "order_approved", orderEvent{OrderID: "00001", Message: "approved"}))

	env := readFrame(t, clientConn)
	assert.Equal(t, "order_approved", env.Event)
	var payload orderEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "00001", payload.OrderID)
}

func TestEmitWithoutConnectionIsDropped(t *testing.T) {
	hub := NewHub(nil, nil)
	require.NoError(t, hub.Emit(context.Background(), 99, "order_placed", orderEvent{OrderID: "00002"}))
	require.Equal(t, 0, hub.Connected(99))
}

func TestLeaveRemovesMembership(t *testing.T) {
	hub := NewHub(nil, nil)
	server, clientConn := net.Pipe()
	defer clientConn.Close()

	leave := hub.Join(5, server)
	leave()
	leave()
	require.Equal(t, 0, hub.Connected(5))
	require.Equal(t, 0, hub.deliver(5, Envelope{Event: "x", Payload: json.RawMessage(`{}`)}))
}

func TestEmitFansOutThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sender := NewHub(nil, rdb)
	receiver := NewHub(nil, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = receiver.Run(ctx) }()

	server, clientConn := net.Pipe()
	defer clientConn.Close()
	leave := receiver.Join(3, server)
	defer leave()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels(DefaultChannel)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sender.Emit(ctx, 3, "chat_message", orderEvent{Message: "hi"}))

	env := readFrame(t, clientConn)
	assert.Equal(t, "chat_message", env.Event)
}
