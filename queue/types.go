package queue

import (
	"fmt"
	"time"
)

// Payload formats carried in Envelope.Format.
const (
	FormatJSON   = "json"
	FormatBinary = "binary"
)

// Envelope wraps one encoded message for transport.
type Envelope struct {
	// Replica is the name of the publishing replica
	Replica string `json:"replica"`

	// Seq numbers the envelopes of one publisher, starting at 1
	Seq uint64 `json:"seq"`

	// Format is FormatJSON or FormatBinary
	Format string `json:"format"`

	// Payload is the encoded message. Binary payloads are base64 on the wire.
	Payload []byte `json:"payload"`

	// SentAt is the Unix timestamp in milliseconds when the envelope was sent
	SentAt int64 `json:"sent_at"`
}

// IsValid checks that the envelope can be delivered.
func (e *Envelope) IsValid() error {
	if e.Replica == "" {
		return fmt.Errorf("replica is required")
	}
	if e.Seq == 0 {
		return fmt.Errorf("seq must be positive")
	}
	switch e.Format {
	case FormatJSON, FormatBinary:
	default:
		return fmt.Errorf("unknown format %q", e.Format)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}

// Age returns how long ago the envelope was sent.
func (e *Envelope) Age() time.Duration {
	if e.SentAt == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(e.SentAt))
}

// IsFrom reports whether the envelope was published by replica.
func (e *Envelope) IsFrom(replica string) bool {
	return e.Replica == replica
}

func healthKey(replica string) string {
	return formatKeyName("rsg", "replica", replica, "health")
}
