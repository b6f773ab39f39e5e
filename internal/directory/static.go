package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/moltarena/arena/internal/battle"
)

// Static is an in-memory battle.Directory, seedable from a JSON file. Used
// by tests and by `arena serve --seed` when no data service is running.
type Static struct {
	mu      sync.RWMutex
	battles map[string]battle.Battle
	agents  map[string]battle.Agent
}

func NewStatic() *Static {
	return &Static{
		battles: make(map[string]battle.Battle),
		agents:  make(map[string]battle.Agent),
	}
}

// seedFile is the JSON shape accepted by LoadSeed.
type seedFile struct {
	Agents  []battle.Agent `json:"agents"`
	Battles []struct {
		battle.Battle
		TurnDurationMs int64 `json:"turnDurationMs"`
	} `json:"battles"`
}

// LoadSeed reads a seed file and returns a populated Static directory.
func LoadSeed(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	s := NewStatic()
	for _, a := range seed.Agents {
		s.PutAgent(a)
	}
	for _, raw := range seed.Battles {
		b := raw.Battle
		b.TurnDuration = time.Duration(raw.TurnDurationMs) * time.Millisecond
		s.PutBattle(b)
	}
	return s, nil
}

// PutBattle inserts or replaces a battle.
func (s *Static) PutBattle(b battle.Battle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles[b.ID] = b
}

// PutAgent inserts or replaces an agent.
func (s *Static) PutAgent(a battle.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
}

// Battle implements battle.Directory.
func (s *Static) Battle(_ context.Context, id string) (*battle.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.battles[id]
	if !ok {
		return nil, battle.ErrNotFound
	}
	out := b
	out.Participants = append([]battle.Participant(nil), b.Participants...)
	return &out, nil
}

// ActiveAgents implements battle.Directory.
func (s *Static) ActiveAgents(_ context.Context) ([]battle.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]battle.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}
