package sandbox

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// chatFrame is the wire frame exchanged over /ws. It mirrors the portal's
// subscribe/send protocol.
type chatFrame struct {
	Action  string          `json:"action"`
	Queue   string          `json:"queue,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// chatHub routes messages between connected sockets by queue name. Each
// connection subscribes to its own user queue and sends to /app/chat; the hub
// delivers to the recipient queue named inside the message.
type chatHub struct {
	mu          sync.RWMutex
	subscribers map[string][]*chatConn
}

type chatConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newChatHub() *chatHub {
	return &chatHub{subscribers: make(map[string][]*chatConn)}
}

func (h *chatHub) subscribe(queue string, c *chatConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[queue] = append(h.subscribers[queue], c)
}

func (h *chatHub) unsubscribe(c *chatConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for queue, conns := range h.subscribers {
		kept := conns[:0]
		for _, sc := range conns {
			if sc != c {
				kept = append(kept, sc)
			}
		}
		if len(kept) == 0 {
			delete(h.subscribers, queue)
		} else {
			h.subscribers[queue] = kept
		}
	}
}

func (h *chatHub) deliver(queue string, message json.RawMessage) {
	h.mu.RLock()
	conns := append([]*chatConn(nil), h.subscribers[queue]...)
	h.mu.RUnlock()

	frame, err := json.Marshal(chatFrame{Action: "message", Queue: queue, Message: message})
	if err != nil {
		return
	}
	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.TextMessage, frame)
		c.writeMu.Unlock()
	}
}

func (s *Server) handleChat(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := &chatConn{ws: ws}
	defer func() {
		s.hub.unsubscribe(conn)
		_ = ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return nil
		}
		var frame chatFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Action {
		case "subscribe":
			s.hub.subscribe(frame.Queue, conn)
		case "unsubscribe":
			s.hub.unsubscribe(conn)
		case "send":
			var msg struct {
				To string `json:"to"`
			}
			if err := json.Unmarshal(frame.Message, &msg); err != nil || msg.To == "" {
				continue
			}
			s.hub.deliver("/user/"+msg.To+"/queue/messages", frame.Message)
		}
	}
}
