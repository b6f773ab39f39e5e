package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/moltarena/arena/internal/battle"
)

// ErrInvalidCredentials means the token did not resolve to an active agent.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Verifier resolves a raw API key to an authenticated agent.
type Verifier interface {
	// Verify returns the active agent owning key, or ErrInvalidCredentials.
	// Other errors indicate the directory being unreachable.
	Verify(ctx context.Context, key string) (*battle.Agent, error)
}

// DirectoryVerifier checks keys against the agents listed by the data
// service. Keys are stored hashed, so verification compares against every
// active agent's hash.
type DirectoryVerifier struct {
	dir battle.Directory
}

func NewDirectoryVerifier(dir battle.Directory) *DirectoryVerifier {
	return &DirectoryVerifier{dir: dir}
}

// Verify implements Verifier.
func (v *DirectoryVerifier) Verify(ctx context.Context, key string) (*battle.Agent, error) {
	agents, err := v.dir.ActiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active agents: %w", err)
	}

	for i := range agents {
		if VerifyKey(key, agents[i].KeyHash) {
			a := agents[i]
			a.KeyHash = "" // never carry the hash past verification
			return &a, nil
		}
	}
	return nil, ErrInvalidCredentials
}
