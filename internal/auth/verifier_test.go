package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/moltarena/arena/internal/battle"
	"github.com/moltarena/arena/internal/directory"
)

func seedAgent(t *testing.T, dir *directory.Static, id string, active bool) string {
	t.Helper()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	hash, err := HashKey(key)
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	dir.PutAgent(battle.Agent{ID: id, Name: "agent-" + id, Active: active, KeyHash: hash})
	return key
}

func TestDirectoryVerifier_ResolvesActiveAgent(t *testing.T) {
	dir := directory.NewStatic()
	key := seedAgent(t, dir, "a1", true)

	v := NewDirectoryVerifier(dir)
	agent, err := v.Verify(context.Background(), key)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if agent.ID != "a1" {
		t.Errorf("agent.ID = %q, want %q", agent.ID, "a1")
	}
	if agent.KeyHash != "" {
		t.Error("resolved agent must not carry the key hash")
	}
}

func TestDirectoryVerifier_RejectsUnknownKey(t *testing.T) {
	dir := directory.NewStatic()
	seedAgent(t, dir, "a1", true)

	v := NewDirectoryVerifier(dir)
	_, err := v.Verify(context.Background(), KeyPrefix+"bogus")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Verify() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestDirectoryVerifier_RejectsInactiveAgent(t *testing.T) {
	dir := directory.NewStatic()
	key := seedAgent(t, dir, "a1", false)

	v := NewDirectoryVerifier(dir)
	_, err := v.Verify(context.Background(), key)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Verify() error = %v, want ErrInvalidCredentials", err)
	}
}
