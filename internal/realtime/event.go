package realtime

import "encoding/json"

// Kind identifies an inbound event. The set is closed; the router's handler
// table must cover every kind.
type Kind string

const (
	KindJoinRoom   Kind = "join-room"
	KindLeaveRoom  Kind = "leave-room"
	KindSubmitTurn Kind = "submit-turn"
	KindCastVote   Kind = "cast-vote"
	KindPing       Kind = "ping"
)

// allKinds is the complete inbound event set, used to check handler-table
// exhaustiveness at construction.
var allKinds = []Kind{KindJoinRoom, KindLeaveRoom, KindSubmitTurn, KindCastVote, KindPing}

// Outbound event names.
const (
	EventConnected         = "connected"
	EventRoomJoined        = "room-joined"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventRoomLeft          = "room-left"
	EventTurnAccepted      = "turn-accepted"
	EventVoteRecorded      = "vote-recorded"
	EventRateLimitExceeded = "rate-limit-exceeded"
	EventError             = "error"
	EventPong              = "pong"
)

// Role classifies a connection at handshake time.
type Role string

const (
	RoleAgent     Role = "agent"
	RoleSpectator Role = "spectator"
)

// Envelope is the wire frame for both directions: an event name plus an
// event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectedPayload confirms a new connection and its resolved role.
type ConnectedPayload struct {
	SocketID string `json:"socketId"`
	Role     Role   `json:"role"`
	AgentID  string `json:"agentId,omitempty"`
}

// RoomConfig is the battle configuration echoed in the join snapshot.
type RoomConfig struct {
	Topic           string `json:"topic"`
	MaxTurns        int    `json:"maxTurns"`
	TurnDurationMs  int64  `json:"turnDurationMs"`
	MaxParticipants int    `json:"maxParticipants"`
}

// ParticipantInfo is one entry of the join snapshot's participant list.
type ParticipantInfo struct {
	ID        string `json:"id"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Host      bool   `json:"isHost"`
}

// RoomJoinedPayload is the connection-scoped acknowledgment for join-room.
type RoomJoinedPayload struct {
	RoomID       string            `json:"roomId"`
	Status       string            `json:"status"`
	Config       RoomConfig        `json:"config"`
	Participants []ParticipantInfo `json:"participants"`
}

// ParticipantJoinedPayload notifies a room about a new member.
type ParticipantJoinedPayload struct {
	AgentID   string `json:"agentId,omitempty"`
	AgentName string `json:"agentName,omitempty"`
	Role      Role   `json:"role"`
}

// ParticipantLeftPayload notifies a room about a departed member.
type ParticipantLeftPayload struct {
	AgentID string `json:"agentId,omitempty"`
	Role    Role   `json:"role"`
}

// RoomLeftPayload acknowledges leave-room to the caller.
type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

// TurnAcceptedPayload acknowledges a rate-gated turn submission. Actual turn
// processing happens downstream.
type TurnAcceptedPayload struct {
	RoomID     string `json:"roomId"`
	Processing bool   `json:"processing"`
}

// VoteRecordedPayload acknowledges a recorded vote. Aggregation happens
// downstream.
type VoteRecordedPayload struct {
	RoomID  string `json:"roomId"`
	Success bool   `json:"success"`
}

// RateLimitedPayload tells the caller to back off.
type RateLimitedPayload struct {
	Event        string `json:"event"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}
