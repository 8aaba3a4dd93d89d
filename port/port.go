// Package port defines the output port that codecs write encoded messages to.
//
// A Writer takes one complete message per call and answers with a status
// code and the number of bytes it accepted. A negative status is a
// transport-specific failure that codecs surface as a transport error.
package port

import (
	"bytes"
	"sync"
)

// Status codes returned by the Writers in this package.
const (
	StatusOK     = 0
	StatusClosed = -1
	StatusFailed = -2
)

// Writer accepts whole encoded messages.
type Writer interface {
	Write(p []byte) (status int, written int)
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(p []byte) (status int, written int)

// Write calls f(p).
func (f WriterFunc) Write(p []byte) (int, int) {
	return f(p)
}

// Discard accepts and drops every message.
var Discard Writer = WriterFunc(func(p []byte) (int, int) {
	return StatusOK, len(p)
})

// Failing is a Writer that rejects every message with status, which should
// be negative.
func Failing(status int) Writer {
	return WriterFunc(func([]byte) (int, int) {
		return status, 0
	})
}

// Buffer keeps every written message in memory. It is safe for concurrent
// use and mostly useful in tests and for in-process replication.
type Buffer struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write stores a copy of p.
func (b *Buffer) Write(p []byte) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return StatusClosed, 0
	}
	b.messages = append(b.messages, bytes.Clone(p))
	return StatusOK, len(p)
}

// Messages returns copies of the stored messages in write order.
func (b *Buffer) Messages() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.messages))
	for i, m := range b.messages {
		out[i] = bytes.Clone(m)
	}
	return out
}

// Len returns the number of stored messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Reset drops every stored message.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

// Close makes subsequent writes fail with StatusClosed.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Tee duplicates every message to all writers. The first failing status
// wins, but every writer still sees the message.
func Tee(writers ...Writer) Writer {
	return WriterFunc(func(p []byte) (int, int) {
		status, written := StatusOK, len(p)
		for _, w := range writers {
			s, n := w.Write(p)
			if s < 0 && status >= 0 {
				status, written = s, n
			}
		}
		return status, written
	})
}
