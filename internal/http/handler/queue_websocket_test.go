package handler_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveline/internal/http/handler"
)

func (s *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App.Listener(ln) }()
	t.Cleanup(func() { _ = s.App.ShutdownWithTimeout(2 * time.Second) })
	return ln.Addr().String()
}

func readSignal(t *testing.T, conn *fastws.Conn) handler.QueueSignal {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var sig handler.QueueSignal
	require.NoError(t, json.Unmarshal(raw, &sig))
	return sig
}

func TestQueueWebSocketPushesSignals(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)
	addr := s.listen(t)

	conn, resp, err := fastws.DefaultDialer.Dial("ws://"+addr+"/ws/queues/"+q.ID, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	sig := readSignal(t, conn)
	assert.Equal(t, "subscribed", sig.Type)
	assert.Equal(t, q.ID, sig.QueueID)
	assert.Equal(t, 1, s.Broker.Subscribers(q.ID))

	_, err = s.Engine.Join(context.Background(), q.ID, "Ana")
	require.NoError(t, err)

	sig = readSignal(t, conn)
	assert.Equal(t, "queue_changed", sig.Type)
	assert.Equal(t, q.ID, sig.QueueID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return s.Broker.Subscribers(q.ID) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestQueueWebSocketRejectsPlainAndUnknown(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws/queues/"+q.ID, nil)
	resp, err := s.App.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/ws/queues/missing", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	resp, err = s.App.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
