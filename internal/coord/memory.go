package coord

import (
	"context"
	"sync"
	"time"

	"github.com/moltarena/arena/internal/clock"
)

// subscriberBuffer bounds each in-memory subscription. A subscriber that
// falls this far behind starts losing messages rather than blocking
// publishers.
const subscriberBuffer = 256

// MemoryStore is an in-process Store for single-instance deployments and
// deterministic tests. Expiry is driven by a Clock, so tests can advance
// virtual time instead of sleeping.
type MemoryStore struct {
	clock clock.Clock

	mu    sync.Mutex
	items map[string]memItem
	subs  map[string][]*memSub

	closeOnce sync.Once
}

type memItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

type memSub struct {
	store   *MemoryStore
	channel string
	ch      chan Message
	once    sync.Once
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock: c,
		items: make(map[string]memItem),
		subs:  make(map[string][]*memSub),
	}
}

// SetNX implements Store. The check and the set happen under one lock, so
// concurrent callers never both observe an absent key.
func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[key]; ok && s.live(item) {
		return false, nil
	}

	item := memItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}
	s.items[key] = item
	return true, nil
}

// TTL implements Store.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || !s.live(item) || item.expiresAt.IsZero() {
		return 0, nil
	}
	return item.expiresAt.Sub(s.clock.Now()), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Publish implements Store. Delivery into each subscription preserves
// publish order; a full subscriber buffer drops the message for that
// subscriber only.
func (s *MemoryStore) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	subs := append([]*memSub(nil), s.subs[channel]...)
	s.mu.Unlock()

	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe implements Store.
func (s *MemoryStore) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memSub{
		store:   s,
		channel: channel,
		ch:      make(chan Message, subscriberBuffer),
	}

	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], sub)
	s.mu.Unlock()

	return sub, nil
}

// Close implements Store. It closes every open subscription.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		subs := s.subs
		s.subs = make(map[string][]*memSub)
		s.mu.Unlock()

		for _, list := range subs {
			for _, sub := range list {
				sub.once.Do(func() { close(sub.ch) })
			}
		}
	})
	return nil
}

// Cleanup removes expired items. Useful for long-running sessions; the store
// is correct without it since reads check expiry.
func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, item := range s.items {
		if !s.live(item) {
			delete(s.items, key)
		}
	}
}

// live reports whether item has not expired. Caller holds s.mu.
func (s *MemoryStore) live(item memItem) bool {
	return item.expiresAt.IsZero() || s.clock.Now().Before(item.expiresAt)
}

func (m *memSub) Messages() <-chan Message { return m.ch }

func (m *memSub) Close() error {
	m.store.mu.Lock()
	list := m.store.subs[m.channel]
	for i, sub := range list {
		if sub == m {
			m.store.subs[m.channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	m.store.mu.Unlock()

	m.once.Do(func() { close(m.ch) })
	return nil
}
