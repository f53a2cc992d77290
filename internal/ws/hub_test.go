package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api-rate-validator/internal/gate"
)

// subscribe starts a server that registers each connection in group and
// returns a client connection once the hub has accepted it.
func subscribe(t *testing.T, hub *Hub, group string) *websocket.Conn {
	t.Helper()
	joined := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(group, conn)
		close(joined)
		defer hub.Unregister(group, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not registered")
	}
	return conn
}

func readAdmission(t *testing.T, conn *websocket.Conn) gate.Admission {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var a gate.Admission
	require.NoError(t, json.Unmarshal(data, &a))
	return a
}

func TestAdmittedFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(16, logr.Discard())
	go hub.Run(ctx)

	all := subscribe(t, hub, AllGroup)
	mine := subscribe(t, hub, ClientGroup("client-001"))

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	hub.Admitted(ctx, gate.Admission{
		Fingerprint: "abc",
		ClientID:    "client-001",
		AdmittedAt:  at,
		ExpiresAt:   at.Add(2 * time.Second),
	})

	for _, conn := range []*websocket.Conn{all, mine} {
		a := readAdmission(t, conn)
		assert.Equal(t, "abc", a.Fingerprint)
		assert.Equal(t, "client-001", a.ClientID)
		assert.True(t, at.Equal(a.AdmittedAt))
	}
}

func TestOtherClientGroupNotNotified(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(16, logr.Discard())
	go hub.Run(ctx)

	other := subscribe(t, hub, ClientGroup("client-002"))
	all := subscribe(t, hub, AllGroup)

	hub.Admitted(ctx, gate.Admission{Fingerprint: "abc", ClientID: "client-001"})
	readAdmission(t, all)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(1, logr.Discard())
	assert.True(t, hub.Broadcast(AllGroup, []byte("1")))
	assert.False(t, hub.Broadcast(AllGroup, []byte("2")))
}

func TestBroadcastAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(4, logr.Discard())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, hub.Broadcast(AllGroup, []byte("late")))
}
