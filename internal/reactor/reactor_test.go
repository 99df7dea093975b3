package reactor

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-gateway/internal/bufpool"
	"github.com/momentics/hioload-gateway/internal/connfsm"
	"github.com/momentics/hioload-gateway/internal/workerpool"
)

// echoHandler treats every accumulated byte as a complete unit of work
// and echoes it back, letting tests exercise the reactor's accept/read/
// dispatch/write cycle without any HTTP parsing involved.
type echoHandler struct{}

func (echoHandler) TryExtract(conn *connfsm.Conn) (func(), bool, error) {
	buf := conn.ReadBuffer()
	if len(buf) == 0 {
		return nil, false, nil
	}
	data := append([]byte(nil), buf...)
	conn.ConsumeRead(len(buf))
	return func() {
		conn.QueueWrite(data)
	}, true, nil
}

func TestReactorEchoesDataRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	pool := workerpool.New(2, 16)
	defer pool.Close()
	bufs := bufpool.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := New(ln, echoHandler{}, pool, bufs, logger, Options{IdleTimeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	defer r.Stop()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestReactorConnCountTracksActiveConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	pool := workerpool.New(2, 16)
	defer pool.Close()
	bufs := bufpool.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := New(ln, echoHandler{}, pool, bufs, logger, Options{IdleTimeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	defer r.Stop()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	time.Sleep(100 * time.Millisecond)
	assert.GreaterOrEqual(t, r.ConnCount(), 1)
}
