package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zero-day-ai/rsg/update"
)

// Handler answers one textual message. *query.Runner implements it.
type Handler interface {
	RunJSON(ctx context.Context, msg []byte) []byte
}

// SubscriberOptions configures a Subscriber. Exactly one of Channel and
// List is set.
type SubscriberOptions struct {
	// Replica names the local replica; its own envelopes are skipped
	Replica string

	// Channel subscribes to a pub/sub channel
	Channel string

	// List pops from a list instead
	List string

	// ReplyChannel, when set, receives every handler result as an envelope
	ReplyChannel string

	// PollTimeout bounds each BRPOP in list mode, 1s by default
	PollTimeout time.Duration

	// HeartbeatInterval refreshes the replica heartbeat while running.
	// Zero disables heartbeats.
	HeartbeatInterval time.Duration

	Logger *slog.Logger
}

// Subscriber feeds envelopes received from Redis into a Handler.
type Subscriber struct {
	client  Client
	handler Handler
	opts    SubscriberOptions
	logger  *slog.Logger
	replies *Port
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(client Client, handler Handler, opts SubscriberOptions) (*Subscriber, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if opts.Replica == "" {
		return nil, fmt.Errorf("replica is required")
	}
	if (opts.Channel == "") == (opts.List == "") {
		return nil, fmt.Errorf("exactly one of channel and list is required")
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Subscriber{
		client:  client,
		handler: handler,
		opts:    opts,
		logger:  opts.Logger.With("component", "queue", "replica", opts.Replica),
	}
	if opts.ReplyChannel != "" {
		replies, err := NewPort(client, PortOptions{Replica: opts.Replica, Channel: opts.ReplyChannel, Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
		s.replies = replies
	}
	return s, nil
}

// Run receives and handles envelopes until ctx is cancelled.
// It returns nil on cancellation and an error if the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		s.heartbeat(ctx)
	}()

	if s.opts.List != "" {
		return s.pollList(ctx)
	}
	return s.consumeChannel(ctx)
}

// Handle processes one envelope and returns the handler result.
// It reports false for skipped envelopes.
func (s *Subscriber) Handle(ctx context.Context, env Envelope) ([]byte, bool) {
	if env.IsFrom(s.opts.Replica) {
		return nil, false
	}
	if err := env.IsValid(); err != nil {
		s.logger.Warn("dropping invalid envelope", "from", env.Replica, "error", err)
		return nil, false
	}
	if env.Format != FormatJSON {
		s.logger.Debug("skipping non-textual envelope", "from", env.Replica, "format", env.Format)
		return nil, false
	}

	result := s.handler.RunJSON(update.WithOrigin(ctx, env.Replica), env.Payload)
	s.logger.Debug("envelope handled", "from", env.Replica, "seq", env.Seq, "age", env.Age())
	if s.replies != nil {
		s.replies.Write(result)
	}
	return result, true
}

func (s *Subscriber) consumeChannel(ctx context.Context) error {
	envelopes, err := s.client.Subscribe(ctx, s.opts.Channel)
	if err != nil {
		return err
	}
	s.logger.Info("subscribed", "channel", s.opts.Channel)

	for env := range envelopes {
		s.Handle(ctx, env)
	}
	// The subscription drains and closes once ctx is done.
	return nil
}

func (s *Subscriber) pollList(ctx context.Context) error {
	s.logger.Info("polling", "list", s.opts.List)
	for {
		if ctx.Err() != nil {
			return nil
		}
		env, err := s.client.Pop(ctx, s.opts.List, s.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if env != nil {
			s.Handle(ctx, *env)
		}
	}
}

func (s *Subscriber) heartbeat(ctx context.Context) {
	interval := s.opts.HeartbeatInterval
	if interval <= 0 {
		return
	}
	beat := func() {
		if err := s.client.Heartbeat(ctx, s.opts.Replica, 3*interval); err != nil && ctx.Err() == nil {
			s.logger.Warn("heartbeat failed", "error", err)
		}
	}

	beat()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
