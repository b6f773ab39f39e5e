package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/moltarena/arena/internal/coord"
	"github.com/moltarena/arena/internal/room"
)

// fanoutChannel is the shared coordination-store channel every instance
// subscribes to. Room and audience ride inside the message envelope.
const fanoutChannel = "arena:rooms"

// Fanout delivers an event to every connection with a matching membership,
// including connections held by other server processes. excludeID names a
// connection to skip, typically the event's originator; "" excludes nobody.
type Fanout interface {
	PublishToRoom(ctx context.Context, roomID string, audience room.Audience, event string, payload any, excludeID string) error
}

// LocalFanout delivers directly through the process-local registry. Suitable
// for single-instance deployments and deterministic tests.
type LocalFanout struct {
	reg *room.Registry
	log *slog.Logger
}

func NewLocalFanout(reg *room.Registry, log *slog.Logger) *LocalFanout {
	return &LocalFanout{reg: reg, log: log}
}

// PublishToRoom implements Fanout. Delivery failures to individual members
// are logged and swallowed; one broken member never blocks the room.
func (f *LocalFanout) PublishToRoom(_ context.Context, roomID string, audience room.Audience, event string, payload any, excludeID string) error {
	for _, m := range f.reg.Members(roomID, audience) {
		if m.ID() == excludeID {
			continue
		}
		if err := m.Deliver(event, payload); err != nil {
			f.log.Warn("broadcast delivery failed",
				"roomId", roomID, "event", event, "memberId", m.ID(), "error", err)
		}
	}
	return nil
}

// fanoutFrame is the cross-instance envelope published to the coordination
// store. Origin lets instances skip their own publications, which they have
// already delivered locally.
type fanoutFrame struct {
	Origin    string          `json:"origin"`
	RoomID    string          `json:"roomId"`
	Audience  room.Audience   `json:"audience"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ExcludeID string          `json:"excludeId,omitempty"`
}

// RedisFanout extends LocalFanout across instances via the coordination
// store's pub/sub. Local members get the event immediately; remote instances
// replay it to their own members. Events published by one instance for one
// room arrive everywhere in publish order.
type RedisFanout struct {
	local  *LocalFanout
	store  coord.Store
	origin string
	log    *slog.Logger

	sub       coord.Subscription
	closeOnce sync.Once
	done      chan struct{}
}

// NewRedisFanout subscribes to the shared channel and starts the replay
// loop. Close must be called to release the subscription.
func NewRedisFanout(ctx context.Context, store coord.Store, reg *room.Registry, log *slog.Logger) (*RedisFanout, error) {
	sub, err := store.Subscribe(ctx, fanoutChannel)
	if err != nil {
		return nil, fmt.Errorf("subscribing to fanout channel: %w", err)
	}

	f := &RedisFanout{
		local:  NewLocalFanout(reg, log),
		store:  store,
		origin: uuid.NewString(),
		log:    log,
		sub:    sub,
		done:   make(chan struct{}),
	}
	go f.replayLoop()
	return f, nil
}

// PublishToRoom implements Fanout.
func (f *RedisFanout) PublishToRoom(ctx context.Context, roomID string, audience room.Audience, event string, payload any, excludeID string) error {
	if err := f.local.PublishToRoom(ctx, roomID, audience, event, payload, excludeID); err != nil {
		return err
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding fanout payload: %w", err)
		}
		raw = b
	}
	frame, err := json.Marshal(fanoutFrame{
		Origin:    f.origin,
		RoomID:    roomID,
		Audience:  audience,
		Event:     event,
		Payload:   raw,
		ExcludeID: excludeID,
	})
	if err != nil {
		return fmt.Errorf("encoding fanout frame: %w", err)
	}

	if err := f.store.Publish(ctx, fanoutChannel, frame); err != nil {
		return fmt.Errorf("publishing fanout frame: %w", err)
	}
	return nil
}

func (f *RedisFanout) replayLoop() {
	for {
		select {
		case <-f.done:
			return
		case msg, ok := <-f.sub.Messages():
			if !ok {
				return
			}
			var frame fanoutFrame
			if err := json.Unmarshal(msg.Payload, &frame); err != nil {
				f.log.Warn("dropping malformed fanout frame", "error", err)
				continue
			}
			if frame.Origin == f.origin {
				continue
			}
			_ = f.local.PublishToRoom(context.Background(), frame.RoomID, frame.Audience, frame.Event, frame.Payload, frame.ExcludeID)
		}
	}
}

// Close stops the replay loop and releases the subscription.
func (f *RedisFanout) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.sub.Close()
	})
	return err
}
