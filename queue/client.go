package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client defines the interface for moving envelopes through Redis.
type Client interface {
	// Push adds an envelope to the end of a list (LPUSH).
	Push(ctx context.Context, list string, env Envelope) error

	// Pop removes and returns an envelope from the front of a list (BRPOP).
	// It waits at most timeout and returns nil, nil when nothing arrived.
	Pop(ctx context.Context, list string, timeout time.Duration) (*Envelope, error)

	// Publish sends an envelope to a pub/sub channel.
	Publish(ctx context.Context, channel string, env Envelope) error

	// Subscribe creates a subscription to a pub/sub channel.
	// Returns a channel that receives envelopes until ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan Envelope, error)

	// Heartbeat marks a replica alive for ttl.
	Heartbeat(ctx context.Context, replica string, ttl time.Duration) error

	// Alive reports whether the replica's heartbeat has not yet expired.
	Alive(ctx context.Context, replica string) (bool, error)

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection. Zero durations take the
// defaults below.
type RedisOptions struct {
	URL            string // default redis://localhost:6379
	TLS            *tls.Config
	ConnectTimeout time.Duration // dial and initial PING, default 5s
	ReadTimeout    time.Duration // default 30s, must exceed the Pop wait
	WriteTimeout   time.Duration // default 5s
	Logger         *slog.Logger
}

func (o RedisOptions) withDefaults() RedisOptions {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	if o.URL == "" {
		o.URL = "redis://localhost:6379"
	}
	def(&o.ConnectTimeout, 5*time.Second)
	def(&o.ReadTimeout, 30*time.Second)
	def(&o.WriteTimeout, 5*time.Second)
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// RedisClient implements Client on go-redis.
type RedisClient struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisClient dials Redis and checks the connection with a PING.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	opts = opts.withDefaults()

	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ro.TLSConfig = opts.TLS
	ro.DialTimeout, ro.ReadTimeout, ro.WriteTimeout = opts.ConnectTimeout, opts.ReadTimeout, opts.WriteTimeout

	rdb := redis.NewClient(ro)
	pingCtx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", ro.Addr, err)
	}

	return &RedisClient{client: rdb, logger: opts.Logger.With("component", "queue")}, nil
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope from %s: %w", env.Replica, err)
	}
	return data, nil
}

// Push adds an envelope to the end of a list.
func (c *RedisClient) Push(ctx context.Context, list string, env Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	if err := c.client.LPush(ctx, list, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", list, err)
	}
	return nil
}

// Pop removes and returns an envelope from the front of a list.
func (c *RedisClient) Pop(ctx context.Context, list string, timeout time.Duration) (*Envelope, error) {
	kv, err := c.client.BRPop(ctx, timeout, list).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("brpop %s: %w", list, err)
	case len(kv) != 2:
		return nil, fmt.Errorf("brpop %s: got %d values, want key and value", list, len(kv))
	}

	env := new(Envelope)
	if err := json.Unmarshal([]byte(kv[1]), env); err != nil {
		return nil, fmt.Errorf("decode envelope from %s: %w", list, err)
	}
	return env, nil
}

// Publish sends an envelope to a pub/sub channel.
func (c *RedisClient) Publish(ctx context.Context, channel string, env Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a subscription to a pub/sub channel.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan Envelope, error) {
	sub := c.client.Subscribe(ctx, channel)
	// The first reply confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan Envelope)
	go c.forward(ctx, sub, channel, out)
	return out, nil
}

// forward decodes pub/sub messages into out until ctx ends or the
// subscription closes.
func (c *RedisClient) forward(ctx context.Context, sub *redis.PubSub, channel string, out chan<- Envelope) {
	defer close(out)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			msg = m
		}

		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.logger.Warn("dropping undecodable envelope", "channel", channel, "error", err)
			continue
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
	}
}

// Heartbeat marks a replica alive for ttl.
func (c *RedisClient) Heartbeat(ctx context.Context, replica string, ttl time.Duration) error {
	if err := c.client.Set(ctx, healthKey(replica), "ok", ttl).Err(); err != nil {
		return fmt.Errorf("heartbeat %s: %w", replica, err)
	}
	return nil
}

// Alive reports whether the replica's heartbeat key still exists.
func (c *RedisClient) Alive(ctx context.Context, replica string) (bool, error) {
	n, err := c.client.Exists(ctx, healthKey(replica)).Result()
	if err != nil {
		return false, fmt.Errorf("check heartbeat %s: %w", replica, err)
	}
	return n == 1, nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// formatKeyName joins key parts with ':'.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
