package port

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer(t *testing.T) {
	b := NewBuffer()

	msg := []byte(`{"op":"CREATE"}`)
	status, n := b.Write(msg)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, len(msg), n)

	msg[0] = 'X'
	assert.Equal(t, []byte(`{"op":"CREATE"}`), b.Messages()[0], "buffer must keep its own copy")

	b.Reset()
	assert.Zero(t, b.Len())

	assert.NoError(t, b.Close())
	status, n = b.Write(msg)
	assert.Equal(t, StatusClosed, status)
	assert.Zero(t, n)
}

func TestBuffer_Concurrent(t *testing.T) {
	b := NewBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Write([]byte("m"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, b.Len())
}

func TestTee(t *testing.T) {
	a, c := NewBuffer(), NewBuffer()
	w := Tee(a, Failing(StatusFailed), c)

	status, n := w.Write([]byte("hello"))
	assert.Equal(t, StatusFailed, status)
	assert.Zero(t, n)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, c.Len())

	status, n = Tee(a, Discard).Write([]byte("ok"))
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 2, n)
}
