package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngineScript emits a ready sentinel immediately, then answers every
// frame it receives on stdin with the same id and a fixed {"ok":true} result,
// simulating the subprocess side of the wire protocol without requiring
// a real browser-automation binary.
const fakeEngineScript = `
echo '{"id":0,"status":"ready"}'
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  echo "{\"id\":$id,\"result\":{\"ok\":true}}"
done
`

func startFakeEngine(t *testing.T) *Channel {
	t.Helper()
	ch := New("/bin/sh", []string{"-c", fakeEngineScript})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Start(ctx))
	t.Cleanup(ch.Stop)
	return ch
}

func TestStartReachesReadyState(t *testing.T) {
	ch := startFakeEngine(t)
	assert.Equal(t, StateReady, ch.State())
}

func TestCallRoundTripsThroughFakeEngine(t *testing.T) {
	ch := startFakeEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := ch.Call(ctx, "navigate", nil)
	require.NoError(t, err)
	assert.Contains(t, string(result), "ok")
}

func TestCallFailsWhenNotReady(t *testing.T) {
	ch := New("/bin/true", nil)
	_, err := ch.Call(context.Background(), "navigate", nil)
	assert.Error(t, err)
}

func TestCallRaw_RejectsMissingID(t *testing.T) {
	ch := startFakeEngine(t)
	_, err := ch.CallRaw(context.Background(), []byte(`{"method":"x"}`))
	assert.Error(t, err)
}

func TestCallTimesOutWhenEngineNeverReplies(t *testing.T) {
	ch := New("/bin/sh", []string{"-c", "echo '{\"id\":0,\"status\":\"ready\"}'; sleep 5"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Start(ctx))
	t.Cleanup(ch.Stop)

	callCtx, callCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer callCancel()
	_, err := ch.Call(callCtx, "stall", nil)
	assert.Error(t, err)
}
