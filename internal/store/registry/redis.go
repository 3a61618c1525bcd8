package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mschirtzinger/tripsync/internal/store"
)

// RedisConfig holds configuration for RedisTransport.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string

	// ReadOnly disables Put.
	ReadOnly bool
}

// RedisTransport keeps the document under one Redis key. Every Put also publishes on
// "<key>:changed" so other clients can poll right away.
type RedisTransport struct {
	rdb      *goredis.Client
	key      string
	channel  string
	readOnly bool
}

var (
	_ Transport     = (*RedisTransport)(nil)
	_ store.Watcher = (*RedisTransport)(nil)
)

// NewRedisTransport connects to Redis and verifies the connection with a ping.
func NewRedisTransport(ctx context.Context, cfg RedisConfig) (*RedisTransport, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisTransport{
		rdb:      rdb,
		key:      cfg.Key,
		channel:  cfg.Key + ":changed",
		readOnly: cfg.ReadOnly,
	}, nil
}

// Close closes the Redis client.
func (t *RedisTransport) Close() error {
	return t.rdb.Close()
}

// Name implements Transport.
func (t *RedisTransport) Name() string {
	return fmt.Sprintf("redis://%s/%s", t.rdb.Options().Addr, t.key)
}

// Writable implements Transport.
func (t *RedisTransport) Writable() bool { return !t.readOnly }

// Get implements Transport.
func (t *RedisTransport) Get(ctx context.Context) ([]byte, error) {
	body, err := t.rdb.Get(ctx, t.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redis get %s: %w", t.key, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Network("redis get", err)
	}
	return body, nil
}

// Put implements Transport.
func (t *RedisTransport) Put(ctx context.Context, body []byte) error {
	_, err := t.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, t.key, body, 0)
		p.Publish(ctx, t.channel, time.Now().UnixMilli())
		return nil
	})
	if err != nil {
		return store.Network("redis put", err)
	}
	return nil
}

// Watch implements store.Watcher using the change channel.
func (t *RedisTransport) Watch(ctx context.Context, onChange func()) error {
	sub := t.rdb.Subscribe(ctx, t.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			onChange()
		}
	}
}
