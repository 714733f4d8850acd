package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kousuke-irie/bicycle-market/middleware"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestClientManagerPush(t *testing.T) {
	old := Manager
	Manager = NewClientManager()
	t.Cleanup(func() { Manager = old })

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		middleware.SetUser(c, &models.User{ID: 7})
		WSHandler(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// 登録は非同期なので待つ
	for i := 0; !Manager.Online(7); i++ {
		if i > 100 {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	Manager.Push(8, EventChatMessage, "not for you")
	Manager.Push(7, EventChatMessage, models.Message{ID: 1, Content: "還在嗎？"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type    string         `json:"type"`
		Payload models.Message `json:"payload"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventChatMessage || got.Payload.Content != "還在嗎？" {
		t.Fatalf("unexpected event: %+v", got)
	}

	conn.Close()
	for i := 0; Manager.Online(7); i++ {
		if i > 100 {
			t.Fatalf("client never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
