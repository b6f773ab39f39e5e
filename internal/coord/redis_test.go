package coord

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestRedisStoreSetNX(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	key := fmt.Sprintf("test:setnx:%d", time.Now().UnixNano())

	set, err := store.SetNX(ctx, key, []byte("1"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() error: %v", err)
	}
	if !set {
		t.Fatal("first SetNX() = false, want true")
	}

	set, err = store.SetNX(ctx, key, []byte("1"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() error: %v", err)
	}
	if set {
		t.Fatal("second SetNX() = true, want false")
	}
}

func TestRedisStoreSetNXExpiry(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	key := fmt.Sprintf("test:expiry:%d", time.Now().UnixNano())

	if _, err := store.SetNX(ctx, key, []byte("1"), 100*time.Millisecond); err != nil {
		t.Fatalf("SetNX() error: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	set, err := store.SetNX(ctx, key, []byte("1"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() after expiry error: %v", err)
	}
	if !set {
		t.Fatal("SetNX() after expiry = false, want true")
	}
}

func TestRedisStoreTTL(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	key := fmt.Sprintf("test:ttl:%d", time.Now().UnixNano())

	if _, err := store.SetNX(ctx, key, []byte("1"), 30*time.Second); err != nil {
		t.Fatalf("SetNX() error: %v", err)
	}

	ttl, err := store.TTL(ctx, key)
	if err != nil {
		t.Fatalf("TTL() error: %v", err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("TTL() = %v, want in (0, 30s]", ttl)
	}

	ttl, err = store.TTL(ctx, key+":missing")
	if err != nil {
		t.Fatalf("TTL() missing key error: %v", err)
	}
	if ttl != 0 {
		t.Fatalf("TTL() missing key = %v, want 0", ttl)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	key := fmt.Sprintf("test:delete:%d", time.Now().UnixNano())

	if _, err := store.SetNX(ctx, key, []byte("1"), time.Minute); err != nil {
		t.Fatalf("SetNX() error: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	set, err := store.SetNX(ctx, key, []byte("1"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() after delete error: %v", err)
	}
	if !set {
		t.Fatal("SetNX() after delete = false, want true")
	}
}

func TestRedisStoreConcurrentSetNX(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	key := fmt.Sprintf("test:concurrent:%d", time.Now().UnixNano())

	const workers = 20
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := store.SetNX(ctx, key, []byte("1"), time.Minute)
			if err != nil {
				t.Errorf("SetNX() error: %v", err)
				return
			}
			wins <- set
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for set := range wins {
		if set {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("got %d winners, want exactly 1", won)
	}
}

func TestRedisStorePubSub(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	channel := fmt.Sprintf("test:pubsub:%d", time.Now().UnixNano())

	sub, err := store.Subscribe(ctx, channel)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	if err := store.Publish(ctx, channel, []byte("hello")); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Channel != channel {
			t.Fatalf("msg.Channel = %q, want %q", msg.Channel, channel)
		}
		if string(msg.Payload) != "hello" {
			t.Fatalf("msg.Payload = %q, want %q", msg.Payload, "hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestRedisStoreSlowSubscriberDoesNotWedgePump(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	channel := fmt.Sprintf("test:slow:%d", time.Now().UnixNano())

	before := runtime.NumGoroutine()

	sub, err := store.Subscribe(ctx, channel)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	// Overfill the subscription buffer with nobody draining it.
	for i := 0; i < subscriberBuffer+50; i++ {
		if err := store.Publish(ctx, channel, []byte("x")); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// The pump must exit without the buffer ever being drained.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+2 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("pump goroutine still alive after Close: %d goroutines, started with %d",
		runtime.NumGoroutine(), before)
}

func TestRedisStoreSubscriptionClose(t *testing.T) {
	store := startRedisStore(t)

	ctx := context.Background()
	sub, err := store.Subscribe(ctx, "test:close")
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Fatal("got message after Close(), want closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Messages() channel not closed after Close()")
	}
}
