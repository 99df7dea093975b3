package license

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngineBinary writes a minimal shell script standing in for the
// engine binary's "--license" one-shot mode, so tests don't depend on a
// real browser-automation binary being present.
func fakeEngineBinary(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCheckParsesValidLicense(t *testing.T) {
	bin := fakeEngineBinary(t, `echo '{"valid":true,"status":"active","hardware_fingerprint":"abc123"}'`)
	m := New(bin)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := m.Check(ctx)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.Equal(t, "abc123", status.HardwareFingerprint)
}

func TestCheckPropagatesExecFailure(t *testing.T) {
	bin := fakeEngineBinary(t, `echo 'bad license' 1>&2; exit 1`)
	m := New(bin)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := m.Check(ctx)
	assert.Error(t, err)
}

func TestActivateParsesResponse(t *testing.T) {
	bin := fakeEngineBinary(t, `echo '{"valid":true,"status":"activated"}'`)
	m := New(bin)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := m.Activate(ctx, "KEY-123")
	require.NoError(t, err)
	assert.Equal(t, "activated", status.Status)
}

func TestRemoveParsesResponse(t *testing.T) {
	bin := fakeEngineBinary(t, `echo '{"valid":false,"status":"removed"}'`)
	m := New(bin)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := m.Remove(ctx)
	require.NoError(t, err)
	assert.Equal(t, "removed", status.Status)
}
