package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/moltarena/arena/internal/auth"
	"github.com/moltarena/arena/internal/battle"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser origin enforcement belongs to the fronting proxy;
		// authentication happens per connection below.
		return true
	},
}

// Server accepts realtime connections, authenticates the handshake, and
// hands each connection to the router.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux

	verifier auth.Verifier
	router   *Router
	connCfg  ConnConfig
	log      *slog.Logger
}

// NewServer creates a realtime server listening on addr.
func NewServer(addr string, verifier auth.Verifier, router *Router, connCfg ConnConfig, log *slog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		verifier: verifier,
		router:   router,
		connCfg:  connCfg,
		log:      log,
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleWS upgrades the connection and runs handshake authentication. No
// token makes an anonymous spectator; a present token must resolve to an
// active agent or the connection attempt is terminated.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := handshakeToken(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	role := RoleSpectator
	var agent *battle.Agent
	if token != "" {
		var authErr *Error
		agent, authErr = s.authenticate(r.Context(), token)
		if authErr != nil {
			// The attempt is terminal: report and close, no retry here.
			s.log.Info("handshake authentication rejected",
				"remote", r.RemoteAddr, "hasToken", true, "code", authErr.Code, "error", authErr.Message)
			s.rejectConn(ws, authErr)
			return
		}
		role = RoleAgent
	}

	c := newConn(uuid.NewString(), role, agent, ws, s.connCfg, s.log)

	s.log.Info("connection established",
		"socketId", c.ID(), "role", role, "agentId", c.AgentID())

	if err := c.Deliver(EventConnected, ConnectedPayload{
		SocketID: c.ID(),
		Role:     role,
		AgentID:  c.AgentID(),
	}); err != nil {
		c.close()
		return
	}

	// The request context dies when this handler returns; the connection
	// outlives it.
	go c.run(context.Background(), s.router)
}

// authenticate resolves a handshake token to an active agent. A bad token and
// an unreachable directory reject with different codes so clients know
// whether retrying can help. The raw token never reaches the logs.
func (s *Server) authenticate(ctx context.Context, token string) (*battle.Agent, *Error) {
	key := auth.ExtractBearer("Bearer " + token)
	if key == "" {
		return nil, &Error{Code: CodeUnauthorized, Message: "invalid token format"}
	}

	agent, err := s.verifier.Verify(ctx, key)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, &Error{Code: CodeUnauthorized, Message: "unauthorized"}
		}
		return nil, unavailableError("authentication unavailable")
	}
	return agent, nil
}

// rejectConn sends a terminal error frame and closes the socket.
func (s *Server) rejectConn(ws *websocket.Conn, cause *Error) {
	frame, _ := json.Marshal(Envelope{
		Event: EventError,
		Data:  mustJSON(cause),
	})
	closeCode := websocket.ClosePolicyViolation
	if cause.Code == CodeServiceUnavailable {
		closeCode = websocket.CloseTryAgainLater
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = ws.WriteMessage(websocket.TextMessage, frame)
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, "authentication failed"))
	_ = ws.Close()
}

// handshakeToken reads the optional credential from the Authorization header
// or the token query parameter.
func handshakeToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if key := auth.ExtractBearer(h); key != "" {
			return key
		}
		return h // malformed header, rejected during authenticate
	}
	return r.URL.Query().Get("token")
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("realtime server listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// StartOnListener begins serving on the provided listener. Useful for tests
// that need an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.log.Info("realtime server listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
