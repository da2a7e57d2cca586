package sync

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func dialTestHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", WSHandler(hub, func(*gin.Context) string { return userID }))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	// consume the welcome frame
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	return ws
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Clients != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Stats().Clients, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyReachesOnlyTheTargetUser(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	alice := dialTestHub(t, hub, "alice")
	bob := dialTestHub(t, hub, "bob")
	waitForClients(t, hub, 2)

	hub.Notify("alice", map[string]string{"event": "ping"})

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := alice.ReadMessage()
	if err != nil {
		t.Fatalf("alice read: %v", err)
	}
	if !strings.Contains(string(msg), "ping") {
		t.Errorf("alice got %q", msg)
	}

	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, msg, err := bob.ReadMessage(); err == nil {
		t.Errorf("bob unexpectedly received %q", msg)
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	alice := dialTestHub(t, hub, "alice")
	bob := dialTestHub(t, hub, "bob")
	waitForClients(t, hub, 2)

	hub.Broadcast(map[string]string{"event": "announce"})

	for name, ws := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("%s read: %v", name, err)
		}
		if !strings.Contains(string(msg), "announce") {
			t.Errorf("%s got %q", name, msg)
		}
	}
}

func TestStatsCountsDistinctUsers(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	dialTestHub(t, hub, "alice")
	dialTestHub(t, hub, "alice")
	dialTestHub(t, hub, "bob")
	waitForClients(t, hub, 3)

	stats := hub.Stats()
	if stats.Clients != 3 || stats.Users != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(slog.New(slog.DiscardHandler))
	router := gin.New()
	router.GET("/ws", WSHandler(hub, func(*gin.Context) string { return "" }))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
