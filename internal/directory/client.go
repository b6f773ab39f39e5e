// Package directory provides implementations of battle.Directory: an HTTP
// client for the data service and a static in-memory directory for local
// development and tests.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/moltarena/arena/internal/battle"
)

const defaultTimeout = 5 * time.Second

// Client talks to the external data service over HTTP. The service owns all
// persistence; this client only reads.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a data-service client. timeout bounds every request;
// zero means the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Battle implements battle.Directory.
func (c *Client) Battle(ctx context.Context, id string) (*battle.Battle, error) {
	var out struct {
		battle.Battle
		TurnDurationMs int64 `json:"turnDurationMs"`
	}
	if err := c.get(ctx, "/internal/battles/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	b := out.Battle
	b.TurnDuration = time.Duration(out.TurnDurationMs) * time.Millisecond
	return &b, nil
}

// ActiveAgents implements battle.Directory.
func (c *Client) ActiveAgents(ctx context.Context) ([]battle.Agent, error) {
	var out struct {
		Agents []battle.Agent `json:"agents"`
	}
	if err := c.get(ctx, "/internal/agents?active=true", &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", battle.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return battle.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: data service returned %d", battle.ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding response: %v", battle.ErrUnavailable, err)
	}
	return nil
}
