package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// イベント種別
const (
	EventChatMessage   = "CHAT_MESSAGE"
	EventOffer         = "OFFER"
	EventOfferResponse = "OFFER_RESPONSE"
	EventOrderUpdate   = "ORDER_UPDATE"
)

// Event クライアントに送る形
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // 同時に書き込めるのは 1 goroutine だけ
}

func (c *wsClient) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

// ClientManager ユーザーごとに 1 接続。配信専用で業務状態は持たない
type ClientManager struct {
	clients map[uint64]*wsClient
	mu      sync.Mutex
}

func NewClientManager() *ClientManager {
	return &ClientManager{clients: make(map[uint64]*wsClient)}
}

var Manager = NewClientManager()

func (m *ClientManager) register(userID uint64, conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	m.mu.Lock()
	if old, ok := m.clients[userID]; ok {
		old.conn.Close()
	}
	m.clients[userID] = client
	m.mu.Unlock()
	return client
}

func (m *ClientManager) unregister(userID uint64, client *wsClient) {
	m.mu.Lock()
	if cur, ok := m.clients[userID]; ok && cur == client {
		delete(m.clients, userID)
	}
	m.mu.Unlock()
	client.conn.Close()
}

// Online 接続中か
func (m *ClientManager) Online(userID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clients[userID]
	return ok
}

// Push 相手がオンラインなら送る。失敗した接続は捨てる
func (m *ClientManager) Push(userID uint64, eventType string, payload interface{}) {
	m.mu.Lock()
	client, ok := m.clients[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := client.send(Event{Type: eventType, Payload: payload}); err != nil {
		log.Warn("websocket push to user %d failed: %v", userID, err)
		m.unregister(userID, client)
	}
}

// WSHandler 認証済みユーザーの接続を登録し、切断まで読み捨てる
func WSHandler(c *gin.Context) {
	userID := me(c).ID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket Upgrade Error: %v", err)
		return
	}

	client := Manager.register(userID, conn)
	defer Manager.unregister(userID, client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
