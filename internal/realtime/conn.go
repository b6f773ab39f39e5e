package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moltarena/arena/internal/battle"
)

// ConnConfig bounds a single connection's resource usage.
type ConnConfig struct {
	SendBuffer      int           // outbound queue length; overflow closes the connection
	MaxMessageBytes int64         // inbound frame size limit
	WriteWait       time.Duration // per-write deadline
	PongWait        time.Duration // read deadline refreshed by pongs
}

// DefaultConnConfig mirrors the handshake timing of the production client.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SendBuffer:      256,
		MaxMessageBytes: 16 * 1024,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
	}
}

var errConnClosed = errors.New("realtime: connection closed")

// Conn is one realtime connection, owned exclusively by this process. The
// identity and role are fixed at handshake and never change afterwards.
type Conn struct {
	id    string
	role  Role
	agent *battle.Agent // nil for spectators

	ws   *websocket.Conn
	cfg  ConnConfig
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	closeOnce   sync.Once
	cleanupOnce sync.Once
}

func newConn(id string, role Role, agent *battle.Agent, ws *websocket.Conn, cfg ConnConfig, log *slog.Logger) *Conn {
	return &Conn{
		id:    id,
		role:  role,
		agent: agent,
		ws:    ws,
		cfg:   cfg,
		send:  make(chan []byte, cfg.SendBuffer),
		done:  make(chan struct{}),
		log:   log.With("socketId", id),
	}
}

// ID returns the connection's opaque identifier.
func (c *Conn) ID() string { return c.id }

// Role returns the role fixed at handshake.
func (c *Conn) Role() Role { return c.role }

// Agent returns the authenticated identity, or nil for spectators.
func (c *Conn) Agent() *battle.Agent { return c.agent }

// AgentID returns the authenticated identity's id, or "".
func (c *Conn) AgentID() string {
	if c.agent == nil {
		return ""
	}
	return c.agent.ID
}

// Deliver queues an event for this connection. It never blocks: if the
// outbound queue is full the connection is closed so one slow consumer
// cannot stall its rooms.
func (c *Conn) Deliver(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.log.Warn("outbound queue full, closing connection", "event", event)
		c.close()
		return errConnClosed
	}
}

// run services the connection until it disconnects, dispatching every
// inbound frame through the router. It blocks; cleanup has run by the time
// it returns.
func (c *Conn) run(ctx context.Context, router *Router) {
	go c.writePump()
	c.readPump(ctx, router)
}

func (c *Conn) readPump(ctx context.Context, router *Router) {
	defer func() {
		c.close()
		// Disconnect cleanup must happen exactly once, even if an
		// in-flight handler races it. Handlers tolerate memberships
		// already being gone.
		c.cleanupOnce.Do(func() { router.Disconnect(ctx, c) })
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = c.Deliver(EventError, validationError("invalid message frame"))
			continue
		}
		router.Dispatch(ctx, c, env)
	}
}

func (c *Conn) writePump() {
	pingPeriod := c.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}
