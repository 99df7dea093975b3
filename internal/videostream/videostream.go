// Package videostream serves browser-context screen frames over HTTP as
// single JPEG snapshots or a continuous MJPEG multipart/x-mixed-replace
// stream, reading from the shared-memory frame source per spec section
// 6 and SPEC_FULL.md's frame-header-layout decision.
//
// Author: momentics <momentics@gmail.com>
package videostream

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-gateway/internal/connfsm"
	"github.com/momentics/hioload-gateway/internal/httpproto"
	"github.com/momentics/hioload-gateway/internal/sharedmem"
)

const boundary = "hioloadframe"

// Streamer serves frames pulled from a shared-memory Source.
type Streamer struct {
	logger *slog.Logger
	source sharedmem.Source

	totalFrames atomic.Uint64

	mu      sync.Mutex
	active  map[string]*streamState
}

type streamState struct {
	framesSent uint64
}

// New constructs a Streamer reading from source.
func New(logger *slog.Logger, source sharedmem.Source) *Streamer {
	return &Streamer{
		logger: logger,
		source: source,
		active: make(map[string]*streamState),
	}
}

// HandleRoute dispatches a /video/... request, returning true if it
// fully handled (and, for /video/stream/, now owns) the connection.
func (s *Streamer) HandleRoute(conn *connfsm.Conn, req *httpproto.Request) bool {
	switch {
	case strings.HasPrefix(req.Path, "/video/frame/"):
		s.serveSingleFrame(conn, strings.TrimPrefix(req.Path, "/video/frame/"))
		return true
	case strings.HasPrefix(req.Path, "/video/stream/"):
		s.serveStream(conn, strings.TrimPrefix(req.Path, "/video/stream/"))
		return true
	case req.Path == "/video/list":
		s.serveList(conn)
		return true
	case req.Path == "/video/stats":
		s.serveStats(conn)
		return true
	}
	return false
}

func parseContextID(s string) ([16]byte, error) {
	var id [16]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("videostream: invalid context id %q: %w", s, err)
	}
	n := copy(id[:], raw)
	_ = n
	return id, nil
}

func (s *Streamer) serveSingleFrame(conn *connfsm.Conn, ctxHex string) {
	ctxID, err := parseContextID(ctxHex)
	if err != nil {
		s.writeError(conn, 400, err.Error())
		return
	}
	frame, err := s.source.ReadFrame(ctxID)
	if err != nil {
		s.writeError(conn, 502, fmt.Sprintf("videostream: read frame: %v", err))
		return
	}
	s.totalFrames.Add(1)
	resp := &httpproto.Response{
		StatusCode: 200,
		StatusText: "OK",
		Headers:    map[string]string{"Content-Type": "image/jpeg"},
		Body:       frame.Payload,
	}
	conn.QueueWrite(resp.Serialize())
}

// serveStream hands the connection off to a dedicated goroutine that
// writes multipart frames directly to the socket until the client
// disconnects, bypassing the reactor's normal buffered-write cycle
// because the stream's lifetime spans many readiness events.
func (s *Streamer) serveStream(conn *connfsm.Conn, ctxHex string) {
	ctxID, err := parseContextID(ctxHex)
	if err != nil {
		s.writeError(conn, 400, err.Error())
		return
	}
	conn.Kind = connfsm.KindVideoStream

	key := ctxHex
	s.mu.Lock()
	st := &streamState{}
	s.active[key] = st
	s.mu.Unlock()

	header := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: multipart/x-mixed-replace; boundary=%s\r\nCache-Control: no-cache\r\nConnection: close\r\n\r\n", boundary)
	if _, err := conn.Raw.Write([]byte(header)); err != nil {
		s.dropStream(key)
		return
	}

	go s.streamLoop(conn, ctxID, key, st)
}

func (s *Streamer) streamLoop(conn *connfsm.Conn, ctxID [16]byte, key string, st *streamState) {
	defer s.dropStream(key)
	for {
		frame, err := s.source.ReadFrame(ctxID)
		if err != nil {
			s.logger.Warn("videostream: stream read failed", slog.String("context", key), slog.String("error", err.Error()))
			return
		}
		part := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame.Payload))
		if _, err := conn.Raw.Write([]byte(part)); err != nil {
			return
		}
		if _, err := conn.Raw.Write(frame.Payload); err != nil {
			return
		}
		if _, err := conn.Raw.Write([]byte("\r\n")); err != nil {
			return
		}
		st.framesSent++
		s.totalFrames.Add(1)
	}
}

func (s *Streamer) dropStream(key string) {
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
}

func (s *Streamer) serveList(conn *connfsm.Conn) {
	s.mu.Lock()
	contexts := make([]string, 0, len(s.active))
	for k := range s.active {
		contexts = append(contexts, k)
	}
	s.mu.Unlock()
	body, _ := json.Marshal(map[string]any{"success": true, "streams": contexts})
	conn.QueueWrite(httpproto.NewResponse(200, body).Serialize())
}

func (s *Streamer) serveStats(conn *connfsm.Conn) {
	s.mu.Lock()
	activeCount := len(s.active)
	s.mu.Unlock()
	body, _ := json.Marshal(map[string]any{
		"success":       true,
		"total_frames":  s.totalFrames.Load(),
		"active_streams": activeCount,
	})
	conn.QueueWrite(httpproto.NewResponse(200, body).Serialize())
}

func (s *Streamer) writeError(conn *connfsm.Conn, status int, message string) {
	body, _ := json.Marshal(map[string]any{"success": false, "error": message})
	conn.QueueWrite(httpproto.NewResponse(status, body).Serialize())
}
