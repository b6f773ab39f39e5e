package coord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second
)

// RedisConfig configures the Redis-backed Store.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	MaxRetries  int
	DialTimeout time.Duration

	Cluster      bool
	ClusterNodes []string
}

// RedisStore is a Redis-backed Store shared by all server instances.
type RedisStore struct {
	client redis.UniversalClient

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStore connects to Redis and verifies the connection with a ping,
// retrying with exponential backoff before giving up.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	conf, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &RedisStore{client: newRedisClient(conf)}
	if err := s.pingWithRetry(context.Background(), conf.MaxRetries); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

// SetNX implements Store using the Redis SET NX primitive, which is atomic
// server-side.
func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is required")
	}
	set, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return set, nil
}

// TTL implements Store. Absent keys and keys without expiry both report 0.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl %q: %w", key, err)
	}
	if d < 0 {
		// -2 no key, -1 no expiry.
		return 0, nil
	}
	return d, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Publish implements Store.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", channel, err)
	}
	return nil
}

// Subscribe implements Store. The returned subscription pumps messages from
// the Redis connection until closed.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so no publish racing the
	// subscribe call is silently missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", channel, err)
	}

	sub := &redisSub{ps: ps, ch: make(chan Message, subscriberBuffer)}
	go sub.pump()
	return sub, nil
}

// Close implements Store. It is idempotent.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Message
	once sync.Once
}

func (r *redisSub) pump() {
	defer r.once.Do(func() { close(r.ch) })
	for msg := range r.ps.Channel() {
		// Same contract as the memory store: a subscriber that stops
		// draining loses messages, it never wedges the pump.
		select {
		case r.ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
		default:
		}
	}
}

func (r *redisSub) Messages() <-chan Message { return r.ch }

func (r *redisSub) Close() error {
	return r.ps.Close()
}

func (s *RedisStore) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := s.client.Ping(ctx).Err(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if lastErr == nil {
		lastErr = errors.New("ping failed with unknown error")
	}
	return lastErr
}

func normalizeRedisConfig(cfg *RedisConfig) (*RedisConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	conf := *cfg
	if conf.PoolSize <= 0 {
		conf.PoolSize = defaultRedisPoolSize
	}
	if conf.MaxRetries <= 0 {
		conf.MaxRetries = defaultRedisMaxRetries
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = defaultRedisDialTimeout
	}

	if conf.Cluster {
		if len(conf.ClusterNodes) == 0 {
			return nil, fmt.Errorf("cluster_nodes is required when cluster=true")
		}
	} else {
		if conf.Host == "" {
			return nil, fmt.Errorf("host is required when cluster=false")
		}
		if conf.Port <= 0 {
			return nil, fmt.Errorf("port must be positive when cluster=false, got %d", conf.Port)
		}
	}

	return &conf, nil
}

func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}

	return redis.NewClient(&redis.Options{
		Addr:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}
