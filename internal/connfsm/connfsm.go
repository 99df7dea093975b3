// Package connfsm defines the per-connection state machine the reactor
// and worker pool coordinate through when handing a connection's
// ownership back and forth, per spec section 3 and section 4.1.
//
// Author: momentics <momentics@gmail.com>
package connfsm

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is one of the five connection lifecycle states.
type State int32

const (
	StateIdle State = iota
	StateReading
	StateDispatched
	StateWriting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDispatched:
		return "dispatched"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind distinguishes the protocol a connection has settled into.
type Kind int32

const (
	KindUnknown Kind = iota
	KindHTTP
	KindWebSocket
	KindVideoStream
)

// Conn is one accepted TCP connection plus the reactor/worker-pool
// bookkeeping it carries across its lifetime, grounded on the teacher's
// WSConnection (atomic closed flag, RWMutex-guarded handler, byte
// counters) but generalized from a single WS session to the gateway's
// five-state HTTP/WS/video FSM.
type Conn struct {
	ID   string
	Raw  net.Conn
	Kind Kind

	state atomic.Int32

	mu         sync.Mutex
	readBuf    []byte // incrementally accumulated bytes not yet parsed
	writeQueue [][]byte

	lastActivity atomic.Int64 // unix nanos

	bytesReceived atomic.Int64
	bytesSent     atomic.Int64

	// RemoteAddr is cached because Raw.RemoteAddr() is unsafe to call
	// once Raw may be concurrently closed.
	RemoteAddr string
}

// New wraps raw in a fresh, Idle Conn.
func New(raw net.Conn) *Conn {
	c := &Conn{
		ID:         uuid.NewString(),
		Raw:        raw,
		RemoteAddr: raw.RemoteAddr().String(),
	}
	c.state.Store(int32(StateIdle))
	c.touch()
	return c
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last recorded read/write.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// State returns the current FSM state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// legalEdges enumerates the FSM's legal edges. Every state except Closed
// may move to Closed (abrupt disconnects), and Reading may fall back to
// Idle when the buffered bytes hold no complete unit of work; every
// other edge must follow the documented read/dispatch/write/idle cycle.
var legalEdges = map[State][]State{
	StateIdle:       {StateReading, StateClosed},
	StateReading:    {StateIdle, StateDispatched, StateClosed},
	StateDispatched: {StateWriting, StateClosed},
	StateWriting:    {StateIdle, StateClosed},
	StateClosed:     {},
}

// TryTransition attempts to move from the current state to next,
// returning false if the edge isn't legal or a concurrent transition won
// the race.
func (c *Conn) TryTransition(next State) bool {
	cur := State(c.state.Load())
	if !edgeAllowed(cur, next) {
		return false
	}
	if !c.state.CompareAndSwap(int32(cur), int32(next)) {
		return false
	}
	c.touch()
	return true
}

func edgeAllowed(from, to State) bool {
	for _, s := range legalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AppendRead accumulates newly read bytes for incremental parsing.
func (c *Conn) AppendRead(b []byte) {
	c.mu.Lock()
	c.readBuf = append(c.readBuf, b...)
	c.mu.Unlock()
	c.bytesReceived.Add(int64(len(b)))
	c.touch()
}

// ReadBuffer returns the accumulated, not-yet-consumed read bytes.
func (c *Conn) ReadBuffer() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readBuf
}

// ConsumeRead discards the first n bytes of the accumulated read buffer,
// called once a parser has extracted a complete message.
func (c *Conn) ConsumeRead(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= len(c.readBuf) {
		c.readBuf = c.readBuf[:0]
		return
	}
	c.readBuf = append(c.readBuf[:0], c.readBuf[n:]...)
}

// QueueWrite appends data to the pending write queue, drained by the
// reactor's writable pass.
func (c *Conn) QueueWrite(data []byte) {
	c.mu.Lock()
	c.writeQueue = append(c.writeQueue, data)
	c.mu.Unlock()
}

// DrainWrites returns and clears the pending write queue.
func (c *Conn) DrainWrites() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.writeQueue
	c.writeQueue = nil
	return q
}

// HasPendingWrites reports whether any writes are queued.
func (c *Conn) HasPendingWrites() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writeQueue) > 0
}

// RecordWrite tracks bytes actually written to the socket.
func (c *Conn) RecordWrite(n int) {
	c.bytesSent.Add(int64(n))
	c.touch()
}

// Stats returns the byte counters for this connection.
func (c *Conn) Stats() (received, sent int64) {
	return c.bytesReceived.Load(), c.bytesSent.Load()
}

// Close forces the FSM to Closed and closes the underlying socket. Safe
// to call more than once.
func (c *Conn) Close() error {
	c.state.Store(int32(StateClosed))
	return c.Raw.Close()
}
