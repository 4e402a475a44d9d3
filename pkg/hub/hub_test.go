package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, opts ...ClientOption) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(h, conn, opts...).Serve()
	}))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish(EventState, "LISTENING"))

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, EventState, ev.Type)
		assert.Equal(t, "LISTENING", ev.Data)
	}
}

func TestHub_GreetingPrecedesBroadcast(t *testing.T) {
	greet := WithGreeting(func() []Message {
		msg, _ := Encode(EventStatus, "hello")
		return []Message{msg}
	})
	h, url := startHub(t, greet)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Publish(EventHUD, "next"))

	assert.Equal(t, EventStatus, readEvent(t, conn).Type)
	assert.Equal(t, EventHUD, readEvent(t, conn).Type)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := New("idle", nil)
	for range broadcastBuffer + 10 {
		h.Broadcast(Message("x"))
	}
	assert.Zero(t, h.ClientCount())
}
