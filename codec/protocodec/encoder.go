package protocodec

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/zero-day-ai/rsg/port"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/update"
)

// Encoder writes one binary container per observed mutation to its port.
// It implements update.Observer.
type Encoder struct {
	update.ObserverFunc

	port   port.Writer
	logger *slog.Logger
	sent   atomic.Uint64
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithLogger sets the encoder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Encoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEncoder creates an Encoder writing to w. A nil w is allowed; every
// message is then reported as a transport failure.
func NewEncoder(w port.Writer, opts ...Option) *Encoder {
	e := &Encoder{
		port:   w,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "protocodec")
	e.ObserverFunc = e.Encode
	return e
}

// Sent returns the number of containers accepted by the port.
func (e *Encoder) Sent() uint64 {
	return e.sent.Load()
}

// Encode builds the container for m and writes its image to the port.
func (e *Encoder) Encode(ctx context.Context, m update.Mutation) error {
	const op = "protocodec.Encode"

	container, err := Container(m)
	if err != nil {
		if errors.Is(err, ErrUncertaintyUnsupported) {
			e.logger.Error("not yet implemented", "op", m.Op, "id", m.ID)
		} else {
			e.logger.Error("cannot create a binary container", "op", m.Op, "id", m.ID, "error", err)
		}
		return rsgerr.Wrap(op, rsgerr.KindEncode, err)
	}

	payload, err := Marshal(container)
	if err != nil {
		e.logger.Error("cannot marshal binary container", "op", m.Op, "id", m.ID, "error", err)
		return rsgerr.Wrap(op, rsgerr.KindEncode, err)
	}

	if e.port == nil {
		e.logger.Warn("message could not be sent as the output port is not specified", "op", m.Op, "bytes", len(payload))
		return rsgerr.New(op, rsgerr.KindTransport, "no output port")
	}
	status, written := e.port.Write(payload)
	if status < 0 {
		return rsgerr.New(op, rsgerr.KindTransport, "output port returned status %d", status)
	}
	e.sent.Add(1)
	e.logger.Debug("message sent", "op", m.Op, "bytes", written)
	return nil
}
