package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/observability"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	// EventSocket is emitted when a chat socket opens or closes.
	EventSocket observability.EventType = "transport.ws"
)

// UpdateDone marks the end of a turn on the chat socket.
const UpdateDone kernel.UpdateType = "done"

// chatSocket serves one WebSocket connection. Each text frame carries a
// ChatRequest; the turn's updates are written back as ChatUpdate frames
// followed by a done frame. Turns on one connection run one at a time, and
// requests without a session id continue the connection's session.
type chatSocket struct {
	conn     *websocket.Conn
	registry *kernel.Registry
	observer observability.Observer
	send     chan *ChatUpdate
	session  string
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &chatSocket{
		conn:     conn,
		registry: s.registry,
		observer: s.observer,
		send:     make(chan *ChatUpdate, 256),
		session:  r.URL.Query().Get("session"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.Emit(ctx, c.observer, EventSocket, observability.LevelInfo, "transport.ws", map[string]any{
		"remote": r.RemoteAddr,
		"state":  "open",
	})

	requests := make(chan ChatRequest, 8)
	done := make(chan struct{})
	go c.writePump(done)
	go func() {
		defer close(c.send)
		for req := range requests {
			c.turn(ctx, req)
		}
	}()

	c.readPump(requests)
	cancel()
	close(requests)
	<-done

	observability.Emit(ctx, c.observer, EventSocket, observability.LevelInfo, "transport.ws", map[string]any{
		"remote":  r.RemoteAddr,
		"state":   "closed",
		"session": c.session,
	})
}

// readPump decodes requests until the peer goes away.
func (c *chatSocket) readPump(requests chan<- ChatRequest) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req ChatRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if isDecodeError(err) {
				c.send <- &ChatUpdate{Update: kernel.Update{Type: kernel.UpdateError, Content: "invalid request: " + err.Error()}}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Emit(context.Background(), c.observer, EventSocket, observability.LevelWarning, "transport.ws", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			c.send <- &ChatUpdate{SessionID: req.SessionID, Update: kernel.Update{Type: kernel.UpdateError, Content: "prompt is required"}}
			continue
		}
		requests <- req
	}
}

func (c *chatSocket) turn(ctx context.Context, req ChatRequest) {
	if req.SessionID == "" {
		req.SessionID = c.session
	}
	if req.SessionID == "" {
		k, err := c.registry.Open(ctx, "")
		if err != nil {
			c.send <- &ChatUpdate{Update: kernel.Update{Type: kernel.UpdateError, Content: err.Error()}}
			c.send <- &ChatUpdate{Update: kernel.Update{Type: UpdateDone}}
			return
		}
		req.SessionID = k.ID()
	}
	c.session = req.SessionID

	var opts []kernel.TurnOption
	if req.Agent != "" {
		opts = append(opts, kernel.UsingAgent(req.Agent))
	}

	id := req.SessionID
	result, err := c.registry.Chat(ctx, id, req.Prompt, func(u kernel.Update) {
		c.send <- &ChatUpdate{SessionID: id, Update: u}
	}, opts...)

	if err != nil && !isTurnOutcome(err) {
		c.send <- &ChatUpdate{SessionID: id, Update: kernel.Update{Type: kernel.UpdateError, Content: err.Error()}}
	}
	final := kernel.Update{Type: UpdateDone}
	if result != nil {
		final.Outcome = result.Outcome
		final.Iteration = result.Iterations
	}
	c.send <- &ChatUpdate{SessionID: id, Update: final}
}

// writePump forwards updates to the peer and keeps the connection alive
// with pings.
func (c *chatSocket) writePump(done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.abandon()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abandon()
				return
			}
		}
	}
}

// abandon closes a connection that can no longer be written, which ends
// readPump, and discards updates until the turn goroutine closes send.
func (c *chatSocket) abandon() {
	c.conn.Close()
	for range c.send {
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
