package connfsm

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return New(server), client
}

func TestNewConnStartsIdle(t *testing.T) {
	c, _ := pipeConn(t)
	assert.Equal(t, StateIdle, c.State())
}

func TestLegalTransitionSequence(t *testing.T) {
	c, _ := pipeConn(t)
	require.True(t, c.TryTransition(StateReading))
	require.True(t, c.TryTransition(StateDispatched))
	require.True(t, c.TryTransition(StateWriting))
	require.True(t, c.TryTransition(StateIdle))
}

func TestIllegalTransitionRejected(t *testing.T) {
	c, _ := pipeConn(t)
	assert.False(t, c.TryTransition(StateDispatched))
	assert.Equal(t, StateIdle, c.State())
}

func TestAnyStateCanCloseViaTryTransition(t *testing.T) {
	c, _ := pipeConn(t)
	require.True(t, c.TryTransition(StateReading))
	assert.True(t, c.TryTransition(StateClosed))
}

func TestReadBufferAccumulateAndConsume(t *testing.T) {
	c, _ := pipeConn(t)
	c.AppendRead([]byte("hello"))
	c.AppendRead([]byte("world"))
	assert.Equal(t, []byte("helloworld"), c.ReadBuffer())

	c.ConsumeRead(5)
	assert.Equal(t, []byte("world"), c.ReadBuffer())
}

func TestWriteQueueDrain(t *testing.T) {
	c, _ := pipeConn(t)
	c.QueueWrite([]byte("a"))
	c.QueueWrite([]byte("b"))
	assert.True(t, c.HasPendingWrites())

	drained := c.DrainWrites()
	assert.Len(t, drained, 2)
	assert.False(t, c.HasPendingWrites())
}
