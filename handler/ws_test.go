package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mcpchat/mcpchat/server/chat"
	"github.com/mcpchat/mcpchat/server/config"
)

func setupTestHub() (*Hub, *httptest.Server) {
	gin.SetMode(gin.TestMode)

	cfg := &config.WebSocketConfig{
		PingInterval: 2,
		PongTimeout:  5,
	}
	hub := NewHub(cfg)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	server := httptest.NewServer(r)

	return hub, server
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws failed: %v", err)
	}
	return conn
}

// readEvent 跳过 PING，读取下一条业务消息
func readEvent(t *testing.T, conn *websocket.Conn) *WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read message failed: %v", err)
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		if msg.Type == "PING" {
			continue
		}
		return &msg
	}
}

func TestWSConnection(t *testing.T) {
	hub, server := setupTestHub()
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	// 等待连接注册
	time.Sleep(100 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub, server := setupTestHub()
	defer server.Close()

	conn1 := dialWS(t, server)
	defer conn1.Close()
	conn2 := dialWS(t, server)
	defer conn2.Close()

	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(&WSMessage{Type: "turn_started", Payload: json.RawMessage(`{"turn_id":"t1"}`)})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readEvent(t, conn)
		if msg.Type != "turn_started" {
			t.Errorf("expected turn_started, got %s", msg.Type)
		}
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, server := setupTestHub()
	defer server.Close()

	conn := dialWS(t, server)
	time.Sleep(100 * time.Millisecond)

	conn.Close()
	time.Sleep(200 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", hub.ClientCount())
	}
}

func TestPingSent(t *testing.T) {
	_, server := setupTestHub()
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	// ping_interval 为 2 秒，3 秒内应收到 PING
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	if msg.Type != "PING" {
		t.Errorf("expected PING, got %s", msg.Type)
	}
}

func TestEventBusDispatch(t *testing.T) {
	hub, server := setupTestHub()
	defer server.Close()

	bus := NewEventBus()
	bus.StartDispatcher(hub)
	defer bus.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	bus.Notify(chat.TurnEvent{
		TurnID:         "turn-1",
		Type:           chat.EventToolCall,
		ConversationID: 7,
		Payload:        map[string]any{"name": "get_weather"},
	})

	msg := readEvent(t, conn)
	if msg.Type != chat.EventToolCall {
		t.Fatalf("expected %s, got %s", chat.EventToolCall, msg.Type)
	}

	var event chat.TurnEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if event.TurnID != "turn-1" || event.ConversationID != 7 {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.Payload["name"] != "get_weather" {
		t.Errorf("unexpected event payload: %v", event.Payload)
	}
}
