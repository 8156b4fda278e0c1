// Package chat implements the portal's real-time messaging client: it
// connects to the message-queue-over-WebSocket transport, subscribes to the
// logged-in user's queue on connect, and delivers inbound messages to a
// handler in connection order. Delivery ordering is provider-guaranteed
// (FIFO per subscription); nothing is re-ordered client-side.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unihealth/careportal/internal/session"
)

// Message is one chat message frame.
type Message struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sentAt"`
}

// frame is the wire envelope for both directions.
type frame struct {
	Action  string   `json:"action"` // "subscribe", "unsubscribe", "send", "message"
	Queue   string   `json:"queue,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Handler receives inbound messages.
type Handler func(Message)

// Conn abstracts the WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a connected chat session for one user.
type Client struct {
	conn    Conn
	userID  string
	handler Handler
	logger  zerolog.Logger

	sendMu sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// Dial connects to the chat endpoint with the session's bearer token and
// subscribes to the user's queue. The returned Client keeps reading until
// Close is called or the connection drops.
func Dial(ctx context.Context, wsURL string, sess *session.Session, handler Handler, logger zerolog.Logger) (*Client, error) {
	header := http.Header{}
	if sess.Token != "" {
		header.Set("Authorization", "Bearer "+sess.Token)
	}

	conn, _, err := gorillawebsocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial chat endpoint: %w", err)
	}

	c := newClient(&gorillaConnAdapter{conn}, sess.UserID, handler, logger)
	if err := c.subscribe(); err != nil {
		conn.Close()
		return nil, err
	}
	go c.readPump()
	return c, nil
}

// newClient wires a Client over any Conn; split out for tests.
func newClient(conn Conn, userID string, handler Handler, logger zerolog.Logger) *Client {
	return &Client{
		conn:    conn,
		userID:  userID,
		handler: handler,
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

// subscribe announces the per-user queue subscription.
func (c *Client) subscribe() error {
	f := frame{Action: "subscribe", Queue: "/user/" + c.userID + "/queue/messages"}
	if err := c.write(f); err != nil {
		return fmt.Errorf("subscribe to user queue: %w", err)
	}
	return nil
}

// Send delivers a message to another user via the send destination.
func (c *Client) Send(to, body string) error {
	select {
	case <-c.closed:
		return fmt.Errorf("chat client is closed")
	default:
	}

	f := frame{
		Action: "send",
		Queue:  "/app/chat",
		Message: &Message{
			ID:     uuid.New().String(),
			From:   c.userID,
			To:     to,
			Body:   body,
			SentAt: time.Now().UTC(),
		},
	}
	if err := c.write(f); err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	return nil
}

func (c *Client) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteMessage(gorillawebsocket.TextMessage, data)
}

// readPump delivers inbound frames to the handler until the connection drops
// or Close is called. Malformed frames are skipped.
func (c *Client) readPump() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn().Err(err).Msg("chat connection lost")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Action == "message" && f.Message != nil && c.handler != nil {
			c.handler(*f.Message)
		}
	}
}

// Close unsubscribes and disconnects. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		// best-effort unsubscribe before the socket goes away
		_ = c.write(frame{Action: "unsubscribe", Queue: "/user/" + c.userID + "/queue/messages"})
		err = c.conn.Close()
	})
	return err
}

// Closed reports whether the client has been closed.
func (c *Client) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
