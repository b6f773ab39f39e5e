package battle

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a battle. The realtime core never mutates
// it; it only reads it to gate join and submit decisions.
type Status string

const (
	StatusPending   Status = "pending"   // open for entry
	StatusActive    Status = "active"    // running
	StatusCompleted Status = "completed" // closed
)

// Agent is an authenticated actor. The realtime core holds a read-only view
// for the lifetime of a connection; the data service owns the record.
type Agent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	KeyHash string `json:"keyHash,omitempty"`
}

// Participant is an agent registered as a contestant in a specific battle.
type Participant struct {
	ID        string `json:"id"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Host      bool   `json:"isHost"`
}

// Battle is a bounded interaction context fetched from the data service.
type Battle struct {
	ID              string        `json:"id"`
	Status          Status        `json:"status"`
	Topic           string        `json:"topic"`
	MaxTurns        int           `json:"maxTurns"`
	TurnDuration    time.Duration `json:"turnDurationMs"`
	MaxParticipants int           `json:"maxParticipants"`
	Private         bool          `json:"isPrivate"`
	Participants    []Participant `json:"participants"`
}

// HasParticipant reports whether agentID is a registered contestant.
func (b *Battle) HasParticipant(agentID string) bool {
	for _, p := range b.Participants {
		if p.AgentID == agentID {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound means the requested battle or agent does not exist.
	ErrNotFound = errors.New("battle: not found")
	// ErrUnavailable means the data service could not be reached in time.
	ErrUnavailable = errors.New("battle: directory unavailable")
)

// Directory is the external data service consumed by the realtime core.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Battle looks up a battle by id. Returns ErrNotFound if absent and
	// ErrUnavailable (possibly wrapped) on transport failure.
	Battle(ctx context.Context, id string) (*Battle, error)

	// ActiveAgents lists agents whose active flag is set, including their
	// credential hashes for verification.
	ActiveAgents(ctx context.Context) ([]Agent, error)
}
