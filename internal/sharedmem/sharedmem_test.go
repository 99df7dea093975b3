package sharedmem

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrips(t *testing.T) {
	h := Header{
		Magic:            FrameMagic,
		Sequence:         42,
		Width:            1280,
		Height:           720,
		TimestampUnixNano: 123456789,
	}
	copy(h.ContextID[:], []byte("0123456789abcdef"))

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], 0xdeadbeef)
	_, err := ReadHeader(bytes.NewReader(buf))
	assert.Error(t, err)
}

func TestFileSourceReadsFrameAndLoops(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frames.bin")

	var buf bytes.Buffer
	h := Header{Magic: FrameMagic, Sequence: 1, Width: 2, Height: 2}
	require.NoError(t, WriteHeader(&buf, h))
	payload := []byte{0xff, 0xd8, 0xff, 0xd9}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	defer src.Close()

	var ctxID [16]byte
	frame, err := src.ReadFrame(ctxID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Header.Sequence)
	assert.Equal(t, payload, frame.Payload)

	// Second read loops back to the start of the file.
	frame2, err := src.ReadFrame(ctxID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame2.Header.Sequence)
}
