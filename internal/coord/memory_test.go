package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moltarena/arena/internal/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemoryStore_SetNX_FirstWins(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	ctx := context.Background()

	set, err := s.SetNX(ctx, "k", []byte("1"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if !set {
		t.Fatal("first SetNX should set")
	}

	set, err = s.SetNX(ctx, "k", []byte("2"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if set {
		t.Fatal("second SetNX should not set")
	}
}

func TestMemoryStore_SetNX_RecreatesAfterExpiry(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	s := NewMemoryStore(vc)
	ctx := context.Background()

	if set, _ := s.SetNX(ctx, "k", []byte("1"), 10*time.Second); !set {
		t.Fatal("first SetNX should set")
	}

	vc.Advance(9 * time.Second)
	if set, _ := s.SetNX(ctx, "k", []byte("1"), 10*time.Second); set {
		t.Fatal("SetNX inside the TTL should not set")
	}

	vc.Advance(time.Second)
	set, err := s.SetNX(ctx, "k", []byte("1"), 10*time.Second)
	if err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if !set {
		t.Fatal("SetNX after expiry should set again")
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	s := NewMemoryStore(vc)
	ctx := context.Background()

	if ttl, _ := s.TTL(ctx, "missing"); ttl != 0 {
		t.Errorf("TTL(missing) = %v, want 0", ttl)
	}

	if _, err := s.SetNX(ctx, "k", []byte("1"), 10*time.Second); err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	vc.Advance(4 * time.Second)

	ttl, err := s.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl != 6*time.Second {
		t.Errorf("TTL() = %v, want 6s", ttl)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	ctx := context.Background()

	if _, err := s.SetNX(ctx, "k", []byte("1"), 0); err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if set, _ := s.SetNX(ctx, "k", []byte("1"), 0); !set {
		t.Error("SetNX after delete should set")
	}
	// Deleting an absent key is fine.
	if err := s.Delete(ctx, "nope"); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}

func TestMemoryStore_SetNX_Concurrent(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := s.SetNX(ctx, "race", []byte("1"), time.Minute)
			if err != nil {
				t.Errorf("SetNX() error = %v", err)
				return
			}
			if set {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("exactly one concurrent SetNX should win, got %d", wins)
	}
}

func TestMemoryStore_PubSub_DeliversInOrder(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "ch")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	for _, p := range []string{"a", "b", "c"} {
		if err := s.Publish(ctx, "ch", []byte(p)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		select {
		case msg := <-sub.Messages():
			if string(msg.Payload) != want {
				t.Errorf("got %q, want %q", msg.Payload, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestMemoryStore_PubSub_ChannelIsolation(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "b", []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub.Messages():
		t.Errorf("subscriber of %q received message for %q", "a", msg.Channel)
	default:
	}
}

func TestMemoryStore_SubscriptionClose(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "ch")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok := <-sub.Messages(); ok {
		t.Error("messages channel should be closed after Close()")
	}

	// Publishing after unsubscribe must not panic or deliver.
	if err := s.Publish(ctx, "ch", []byte("x")); err != nil {
		t.Errorf("Publish() after Close error = %v", err)
	}
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	s := NewMemoryStore(clock.NewVirtualClock(epoch))
	if _, err := s.Subscribe(context.Background(), "ch"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	s := NewMemoryStore(vc)
	ctx := context.Background()

	if _, err := s.SetNX(ctx, "short", []byte("1"), time.Second); err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if _, err := s.SetNX(ctx, "forever", []byte("1"), 0); err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}

	vc.Advance(2 * time.Second)
	s.Cleanup()

	if set, _ := s.SetNX(ctx, "short", []byte("1"), time.Second); !set {
		t.Error("expired key should be gone after Cleanup")
	}
	if set, _ := s.SetNX(ctx, "forever", []byte("1"), 0); set {
		t.Error("unexpired key should survive Cleanup")
	}
}
