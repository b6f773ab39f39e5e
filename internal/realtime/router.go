package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moltarena/arena/internal/battle"
	"github.com/moltarena/arena/internal/coord"
	"github.com/moltarena/arena/internal/room"
)

// Rate-limit key scheme shared with any other instance behind the same
// coordination store.
const (
	turnLimitKeyPrefix = "ws:ratelimit:submit_turn:"
	voteFlagKeyPrefix  = "ws:ratelimit:vote:"
)

// RouterConfig holds the router's gating parameters.
type RouterConfig struct {
	TurnWindow   time.Duration // throttle window per agent for submit-turn
	VoteTTL      time.Duration // one-shot vote flag lifetime, outlasts any battle
	StoreTimeout time.Duration // bound on every coordination-store call
}

// DefaultRouterConfig matches the production gating windows.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		TurnWindow:   10 * time.Second,
		VoteTTL:      24 * time.Hour,
		StoreTimeout: 3 * time.Second,
	}
}

type handlerFunc func(ctx context.Context, c *Conn, data json.RawMessage)

// Router dispatches validated inbound events, enforcing authorization and
// rate limits on each one. It keeps no per-event state: authorization is
// re-derived from the registry and the battle directory on every event.
type Router struct {
	reg    *room.Registry
	dir    battle.Directory
	store  coord.Store
	fanout Fanout
	cfg    RouterConfig
	log    *slog.Logger

	handlers map[Kind]handlerFunc
}

// NewRouter builds a router with a handler for every inbound event kind.
// It panics if the handler table would leave a kind unrouted.
func NewRouter(reg *room.Registry, dir battle.Directory, store coord.Store, fanout Fanout, cfg RouterConfig, log *slog.Logger) *Router {
	r := &Router{
		reg:    reg,
		dir:    dir,
		store:  store,
		fanout: fanout,
		cfg:    cfg,
		log:    log,
	}
	r.handlers = map[Kind]handlerFunc{
		KindJoinRoom:   r.handleJoin,
		KindLeaveRoom:  r.handleLeave,
		KindSubmitTurn: r.handleSubmitTurn,
		KindCastVote:   r.handleVote,
		KindPing:       r.handlePing,
	}
	for _, k := range allKinds {
		if _, ok := r.handlers[k]; !ok {
			panic(fmt.Sprintf("realtime: no handler for event kind %q", k))
		}
	}
	return r
}

// Dispatch routes one inbound envelope. Failures are reported only to the
// triggering connection; they never interrupt other connections and never
// close this one.
func (r *Router) Dispatch(ctx context.Context, c *Conn, env Envelope) {
	h, ok := r.handlers[Kind(env.Event)]
	if !ok {
		r.emitError(c, validationError(fmt.Sprintf("unknown event %q", env.Event)))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic",
				"socketId", c.ID(), "event", env.Event, "panic", rec)
			r.emitError(c, &Error{Code: CodeInternal, Message: "internal error"})
		}
	}()

	h(ctx, c, env.Data)
}

// Disconnect runs the connection's final cleanup: every membership is
// removed and each affected room is notified. Per-room notification is
// best-effort; a failure in one room never blocks cleanup of the rest.
func (r *Router) Disconnect(ctx context.Context, c *Conn) {
	left := r.reg.LeaveAll(c)
	for _, roomID := range left {
		err := r.fanout.PublishToRoom(ctx, roomID, room.AudienceAll, EventParticipantLeft, ParticipantLeftPayload{
			AgentID: c.AgentID(),
			Role:    c.Role(),
		}, c.ID())
		if err != nil {
			r.log.Warn("participant-left broadcast failed",
				"socketId", c.ID(), "roomId", roomID, "error", err)
		}
	}
	r.log.Info("connection cleaned up",
		"socketId", c.ID(), "role", c.Role(), "rooms", len(left))
}

func (r *Router) handleJoin(ctx context.Context, c *Conn, data json.RawMessage) {
	p, verr := ValidateJoin(data)
	if verr != nil {
		r.emitError(c, verr)
		return
	}

	b, err := r.lookupBattle(ctx, p.RoomID)
	if err != nil {
		if errors.Is(err, battle.ErrNotFound) {
			r.emitError(c, &Error{Code: CodeBattleNotFound, Message: "battle not found"})
			return
		}
		r.log.Error("battle lookup failed", "socketId", c.ID(), "roomId", p.RoomID, "error", err)
		r.emitError(c, unavailableError("battle lookup unavailable"))
		return
	}

	if c.Role() == RoleAgent && !b.HasParticipant(c.AgentID()) {
		r.emitError(c, &Error{Code: CodeNotParticipant, Message: "you are not a participant in this battle"})
		return
	}
	if b.Private && c.Role() == RoleSpectator {
		r.emitError(c, &Error{Code: CodePrivateBattle, Message: "this is a private battle"})
		return
	}

	joined := r.reg.Join(c, p.RoomID, audienceFor(c.Role()))

	r.emit(c, EventRoomJoined, snapshotOf(b))

	// Broadcast only on a fresh membership so a repeated join produces no
	// duplicate notification.
	if joined {
		err := r.fanout.PublishToRoom(ctx, p.RoomID, room.AudienceAll, EventParticipantJoined, ParticipantJoinedPayload{
			AgentID:   c.AgentID(),
			AgentName: agentName(c),
			Role:      c.Role(),
		}, c.ID())
		if err != nil {
			r.log.Warn("participant-joined broadcast failed",
				"socketId", c.ID(), "roomId", p.RoomID, "error", err)
		}
	}

	r.log.Info("joined battle",
		"socketId", c.ID(), "roomId", p.RoomID, "role", c.Role(), "agentId", c.AgentID())
}

func (r *Router) handleLeave(ctx context.Context, c *Conn, data json.RawMessage) {
	p, verr := ValidateLeave(data)
	if verr != nil {
		r.emitError(c, verr)
		return
	}

	removed := r.reg.Leave(c, p.RoomID)

	r.emit(c, EventRoomLeft, RoomLeftPayload{RoomID: p.RoomID})

	if removed {
		err := r.fanout.PublishToRoom(ctx, p.RoomID, room.AudienceAll, EventParticipantLeft, ParticipantLeftPayload{
			AgentID: c.AgentID(),
			Role:    c.Role(),
		}, c.ID())
		if err != nil {
			r.log.Warn("participant-left broadcast failed",
				"socketId", c.ID(), "roomId", p.RoomID, "error", err)
		}
	}

	r.log.Info("left battle",
		"socketId", c.ID(), "roomId", p.RoomID, "role", c.Role(), "agentId", c.AgentID())
}

func (r *Router) handleSubmitTurn(ctx context.Context, c *Conn, data json.RawMessage) {
	if c.Role() != RoleAgent {
		r.emitError(c, &Error{Code: CodeForbidden, Message: "only agents can submit turns"})
		return
	}

	p, verr := ValidateSubmitTurn(data)
	if verr != nil {
		r.emitError(c, verr)
		return
	}

	key := turnLimitKeyPrefix + c.AgentID()
	set, err := r.setNX(ctx, key, r.cfg.TurnWindow)
	if err != nil {
		r.log.Error("turn rate-limit check failed", "socketId", c.ID(), "roomId", p.RoomID, "error", err)
		r.emitError(c, unavailableError("rate limiting service unavailable"))
		return
	}
	if !set {
		r.emit(c, EventRateLimitExceeded, RateLimitedPayload{
			Event:        string(KindSubmitTurn),
			RetryAfterMs: r.retryAfterMs(ctx, key),
		})
		return
	}

	// Turn content processing is a downstream collaborator triggered by
	// this acknowledgment; the router's job ends at accepted-and-gated.
	r.emit(c, EventTurnAccepted, TurnAcceptedPayload{RoomID: p.RoomID, Processing: true})

	r.log.Info("turn submitted", "socketId", c.ID(), "roomId", p.RoomID, "agentId", c.AgentID())
}

func (r *Router) handleVote(ctx context.Context, c *Conn, data json.RawMessage) {
	// Voting requires a resolved identity: connection addresses are
	// forgeable, so anonymous spectators are always rejected.
	if c.Agent() == nil {
		r.emitError(c, &Error{Code: CodeUnauthorized, Message: "authentication required to vote"})
		return
	}

	p, verr := ValidateVote(data)
	if verr != nil {
		r.emitError(c, verr)
		return
	}

	key := voteFlagKeyPrefix + p.RoomID + ":" + c.AgentID()
	set, err := r.setNX(ctx, key, r.cfg.VoteTTL)
	if err != nil {
		r.log.Error("vote flag check failed", "socketId", c.ID(), "roomId", p.RoomID, "error", err)
		r.emitError(c, unavailableError("voting service unavailable"))
		return
	}
	if !set {
		r.emitError(c, &Error{Code: CodeAlreadyVoted, Message: "you have already voted in this battle"})
		return
	}

	r.emit(c, EventVoteRecorded, VoteRecordedPayload{RoomID: p.RoomID, Success: true})

	r.log.Info("vote cast",
		"socketId", c.ID(), "roomId", p.RoomID, "voter", c.AgentID(), "votedFor", p.TargetIdentity)
}

func (r *Router) handlePing(_ context.Context, c *Conn, _ json.RawMessage) {
	r.emit(c, EventPong, nil)
}

// lookupBattle queries the directory under the store timeout bound.
func (r *Router) lookupBattle(ctx context.Context, id string) (*battle.Battle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.dir.Battle(ctx, id)
}

// setNX runs an atomic check-and-set against the coordination store with a
// bounded timeout.
func (r *Router) setNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.store.SetNX(ctx, key, []byte("1"), ttl)
}

// retryAfterMs reads the remaining wait from the store, falling back to the
// full window when the record cannot be read.
func (r *Router) retryAfterMs(ctx context.Context, key string) int64 {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	ttl, err := r.store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return r.cfg.TurnWindow.Milliseconds()
	}
	return ttl.Milliseconds()
}

func (r *Router) emit(c *Conn, event string, payload any) {
	if err := c.Deliver(event, payload); err != nil {
		r.log.Warn("emit failed", "socketId", c.ID(), "event", event, "error", err)
	}
}

func (r *Router) emitError(c *Conn, e *Error) {
	r.emit(c, EventError, e)
}

func audienceFor(role Role) room.Audience {
	if role == RoleAgent {
		return room.AudienceAgents
	}
	return room.AudienceSpectators
}

func agentName(c *Conn) string {
	if c.Agent() == nil {
		return ""
	}
	return c.Agent().Name
}

func snapshotOf(b *battle.Battle) RoomJoinedPayload {
	parts := make([]ParticipantInfo, 0, len(b.Participants))
	for _, p := range b.Participants {
		parts = append(parts, ParticipantInfo{
			ID:        p.ID,
			AgentID:   p.AgentID,
			AgentName: p.AgentName,
			Host:      p.Host,
		})
	}
	return RoomJoinedPayload{
		RoomID: b.ID,
		Status: string(b.Status),
		Config: RoomConfig{
			Topic:           b.Topic,
			MaxTurns:        b.MaxTurns,
			TurnDurationMs:  b.TurnDuration.Milliseconds(),
			MaxParticipants: b.MaxParticipants,
		},
		Participants: parts,
	}
}
