// Package wsgateway owns every connection that has completed the
// WebSocket upgrade handshake. It forwards inbound text frames into the
// engine channel as JSON-RPC-ish calls, writes each call's reply back as
// a text frame, and runs the ping/pong liveness sweep registered as a
// reactor housekeeping hook, per spec section 4.7. It sends no frames
// that are not a reply, a pong, a ping or a close.
//
// Author: momentics <momentics@gmail.com>
package wsgateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/momentics/hioload-gateway/internal/connfsm"
	"github.com/momentics/hioload-gateway/internal/engine"
	"github.com/momentics/hioload-gateway/internal/wsproto"
)

// pingInterval and pongTimeout match the teacher's WS liveness cadence.
const (
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second
)

// session tracks one upgraded connection's reassembly and liveness state.
type session struct {
	conn         *connfsm.Conn
	reassembler  wsproto.Reassembler
	lastPong     time.Time // last pong received, or last ping sent
	pingOutstanding bool
}

// rpcRequest is the inbound message shape read off a text frame.
type rpcRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Hub owns every upgraded connection and the engine channel they share.
type Hub struct {
	logger *slog.Logger
	eng    *engine.Channel

	callTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs a Hub bound to eng, used for every forwarded RPC call.
func New(logger *slog.Logger, eng *engine.Channel, callTimeout time.Duration) *Hub {
	return &Hub{
		logger:      logger,
		eng:         eng,
		callTimeout: callTimeout,
		sessions:    make(map[string]*session),
	}
}

// Adopt registers conn as a live WebSocket session, called by the
// router immediately after it queues the 101 response.
func (h *Hub) Adopt(conn *connfsm.Conn) {
	h.mu.Lock()
	h.sessions[conn.ID] = &session{conn: conn, lastPong: time.Now()}
	h.mu.Unlock()
}

// Forget drops bookkeeping for a closed connection.
func (h *Hub) Forget(conn *connfsm.Conn) {
	h.mu.Lock()
	delete(h.sessions, conn.ID)
	h.mu.Unlock()
}

// TryExtract implements reactor.Handler for connections of Kind
// KindWebSocket: it decodes one complete frame from the buffer, if there
// is one, and returns a work closure that dispatches it.
func (h *Hub) TryExtract(conn *connfsm.Conn) (func(), bool, error) {
	h.mu.Lock()
	sess, ok := h.sessions[conn.ID]
	h.mu.Unlock()
	if !ok {
		sess = &session{conn: conn, lastPong: time.Now()}
		h.mu.Lock()
		h.sessions[conn.ID] = sess
		h.mu.Unlock()
	}

	buf := conn.ReadBuffer()
	frame, consumed, err := wsproto.DecodeFrame(buf)
	if err != nil {
		conn.ConsumeRead(len(buf))
		return func() { h.closeWithError(sess, wsproto.StatusProtocolError, err.Error()) }, true, nil
	}
	if frame == nil {
		return nil, false, nil
	}
	conn.ConsumeRead(consumed)

	return func() { h.dispatchFrame(sess, frame) }, true, nil
}

func (h *Hub) dispatchFrame(sess *session, f *wsproto.Frame) {
	switch f.Opcode {
	case wsproto.OpPing:
		sess.conn.QueueWrite(wsproto.EncodeFrame(wsproto.PongFrame(f.Payload)))
		return
	case wsproto.OpPong:
		sess.lastPong = time.Now()
		sess.pingOutstanding = false
		return
	case wsproto.OpClose:
		sess.conn.QueueWrite(wsproto.EncodeFrame(wsproto.CloseFrame(1000, "")))
		_ = sess.conn.Close()
		h.Forget(sess.conn)
		return
	}

	opcode, payload, ok, err := sess.reassembler.Feed(f)
	if err != nil {
		h.closeWithError(sess, wsproto.StatusProtocolError, err.Error())
		return
	}
	if !ok {
		return
	}
	if opcode != wsproto.OpText && opcode != wsproto.OpBinary {
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.writeResponse(sess, rpcResponse{Error: "invalid JSON message"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.callTimeout)
	defer cancel()
	result, err := h.eng.Call(ctx, req.Method, req.Params)
	if err != nil {
		h.writeResponse(sess, rpcResponse{ID: req.ID, Error: err.Error()})
		return
	}
	h.writeResponse(sess, rpcResponse{ID: req.ID, Result: result})
}

func (h *Hub) writeResponse(sess *session, resp rpcResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("wsgateway: marshal response failed", slog.String("error", err.Error()))
		return
	}
	sess.conn.QueueWrite(wsproto.EncodeFrame(&wsproto.Frame{Final: true, Opcode: wsproto.OpText, Payload: body}))
}

func (h *Hub) closeWithError(sess *session, code uint16, reason string) {
	sess.conn.QueueWrite(wsproto.EncodeFrame(wsproto.CloseFrame(code, reason)))
	_ = sess.conn.Close()
	h.Forget(sess.conn)
}

// Housekeeping is registered with the reactor via OnHousekeeping; it
// pings sessions that have gone quiet and disconnects (status 1011) any
// that never answered the previous ping within pongTimeout.
func (h *Hub) Housekeeping(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.sessions {
		idle := now.Sub(sess.lastPong)
		if sess.pingOutstanding && idle > pongTimeout {
			sess.conn.QueueWrite(wsproto.EncodeFrame(wsproto.CloseFrame(1011, "ping timeout")))
			_ = sess.conn.Close()
			delete(h.sessions, id)
			continue
		}
		if !sess.pingOutstanding && idle > pingInterval {
			sess.conn.QueueWrite(wsproto.EncodeFrame(&wsproto.Frame{Final: true, Opcode: wsproto.OpPing}))
			sess.pingOutstanding = true
			sess.lastPong = now
		}
	}
}

// SessionCount reports the number of live upgraded connections, for
// /stats.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
