package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the shared pub/sub channel name used when none is
// configured. All processes of one deployment must agree on it.
const DefaultChannel = "realtime:rooms"

// RedisAdapter implements Adapter over a Redis pub/sub channel. Redis
// delivers every published message to every subscriber, the publisher
// included; local delivery therefore happens exclusively on the subscribe
// path, so an event takes the same route whether it originated here or on
// another process.
type RedisAdapter struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu      sync.RWMutex
	handler Handler

	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisAdapter connects to Redis at url (redis:// form), verifies the
// connection, and starts consuming the shared channel.
func NewRedisAdapter(url, channel string, logger *slog.Logger) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisAdapterWithClient(client, channel, logger), nil
}

// NewRedisAdapterWithClient builds an adapter from an existing client.
// The adapter takes ownership of the client and closes it on Close.
func NewRedisAdapterWithClient(client *redis.Client, channel string, logger *slog.Logger) *RedisAdapter {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &RedisAdapter{
		client:  client,
		channel: channel,
		logger:  logger,
		sub:     client.Subscribe(ctx, channel),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.consume()
	return a
}

// Publish marshals the envelope onto the shared channel. On error the
// caller falls back to local-only delivery; cross-process fanout degrades
// silently from the clients' point of view.
func (a *RedisAdapter) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := a.client.Publish(ctx, a.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", a.channel, err)
	}
	return nil
}

// Subscribe registers the local delivery handler.
func (a *RedisAdapter) Subscribe(h Handler) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

// Close stops the consumer and closes the Redis client.
func (a *RedisAdapter) Close() error {
	a.cancel()
	err := a.sub.Close()
	<-a.done
	if cerr := a.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *RedisAdapter) consume() {
	defer close(a.done)
	for msg := range a.sub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			a.logger.Warn("dropping malformed broadcast envelope", "error", err)
			continue
		}
		a.mu.RLock()
		h := a.handler
		a.mu.RUnlock()
		if h != nil {
			h(env)
		}
	}
}
