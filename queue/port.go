package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zero-day-ai/rsg/port"
)

// PortOptions configures a Port. Exactly one of Channel and List is set.
type PortOptions struct {
	// Replica names the publishing replica in every envelope
	Replica string

	// Channel publishes to a pub/sub channel
	Channel string

	// List pushes onto a list instead
	List string

	// Format labels the payloads, FormatJSON by default
	Format string

	// Timeout bounds each Redis call, 5s by default
	Timeout time.Duration

	Logger *slog.Logger
}

// Port is a port.Writer that sends every message to Redis.
// A failed send is reported as port.StatusFailed.
type Port struct {
	client Client
	opts   PortOptions
	logger *slog.Logger
	seq    atomic.Uint64
	now    func() time.Time
}

var _ port.Writer = (*Port)(nil)

// NewPort creates a Port over client.
func NewPort(client Client, opts PortOptions) (*Port, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if opts.Replica == "" {
		return nil, fmt.Errorf("replica is required")
	}
	if (opts.Channel == "") == (opts.List == "") {
		return nil, fmt.Errorf("exactly one of channel and list is required")
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Format != FormatJSON && opts.Format != FormatBinary {
		return nil, fmt.Errorf("unknown format %q", opts.Format)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Port{
		client: client,
		opts:   opts,
		logger: opts.Logger.With("component", "queue", "replica", opts.Replica),
		now:    time.Now,
	}, nil
}

// Write sends b as one envelope.
func (p *Port) Write(b []byte) (int, int) {
	env := Envelope{
		Replica: p.opts.Replica,
		Seq:     p.seq.Add(1),
		Format:  p.opts.Format,
		Payload: append([]byte(nil), b...),
		SentAt:  p.now().UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	var err error
	if p.opts.List != "" {
		err = p.client.Push(ctx, p.opts.List, env)
	} else {
		err = p.client.Publish(ctx, p.opts.Channel, env)
	}
	if err != nil {
		p.logger.Warn("message not sent", "seq", env.Seq, "error", err)
		return port.StatusFailed, 0
	}
	return port.StatusOK, len(b)
}

// Sent returns the sequence number of the last envelope.
func (p *Port) Sent() uint64 {
	return p.seq.Load()
}
