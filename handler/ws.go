package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mcpchat/mcpchat/server/config"
)

// WebSocket 下行消息结构
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 表示一个 WebSocket 客户端连接（前端页面）
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
		c.conn.Close()
	}
}

// Hub 管理所有已连接的前端客户端，把回合事件广播给它们。
// 同一用户可以开多个页面，所以这里是多连接广播而不是单连接。
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	cfg     *config.WebSocketConfig
}

func NewHub(cfg *config.WebSocketConfig) *Hub {
	return &Hub{
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 向所有客户端广播一条消息。
// 单个客户端缓冲满时丢弃该客户端的消息，不阻塞其他客户端。
func (h *Hub) Broadcast(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] marshal broadcast failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.send <- data:
		default:
			log.Println("[WS] client send buffer full, dropping event")
		}
		client.mu.Unlock()
	}
}

// HandleWS 处理 WebSocket 连接请求
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade error: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[WS] client connected, total=%d", total)

	go h.writePump(client)
	go h.pingPump(client)
	h.readPump(client)
}

// readPump 持续读取客户端消息，只用于刷新读超时和响应 PONG
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		total := len(h.clients)
		h.mu.Unlock()
		client.Close()
		log.Printf("[WS] client disconnected, total=%d", total)
	}()

	pongTimeout := time.Duration(h.cfg.PongTimeout) * time.Second
	pingInterval := time.Duration(h.cfg.PingInterval) * time.Second

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error: %v", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] invalid message: %v", err)
			continue
		}

		// 收到任何消息都刷新读超时（证明连接活跃）
		client.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	}
}

// writePump 将消息写入 WebSocket 连接
func (h *Hub) writePump(client *Client) {
	for data := range client.send {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			return
		}
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()

		if err != nil {
			log.Printf("[WS] write error: %v", err)
			return
		}
	}
}

// pingPump 定期发送应用层 PING 心跳
// 前端收到后回复应用层 PONG（JSON 文本），由 readPump 刷新读超时
func (h *Hub) pingPump(client *Client) {
	ticker := time.NewTicker(time.Duration(h.cfg.PingInterval) * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C

		pingMsg := &WSMessage{Type: "PING"}
		data, _ := json.Marshal(pingMsg)

		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			return
		}
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()

		if err != nil {
			log.Printf("[WS] ping error: %v", err)
			return
		}
	}
}
