// Package reactor implements the gateway's single-threaded,
// readiness-driven accept/read/write loop, per spec section 4.1.
//
// The reactor owns no application semantics: it accumulates bytes into
// each connfsm.Conn, and whenever a connection is holding a complete
// unit of work (through Handler.TryExtract), it transitions the
// connection to Dispatched and hands it to the worker pool. The worker
// task runs the handler's work, writes the connection's queued outbound
// bytes to the socket itself, and returns the connection to Idle.
// Accepting runs on its own goroutine; readiness polling and reads
// follow the teacher's epoll_reactor.go FDCallback dispatch-by-fd
// design.
//
// Author: momentics <momentics@gmail.com>
package reactor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-gateway/internal/bufpool"
	"github.com/momentics/hioload-gateway/internal/connfsm"
	"github.com/momentics/hioload-gateway/internal/workerpool"
)

// Handler processes accumulated bytes on a connection. TryExtract is
// called after every read; it must not block. When it returns ok=true,
// the reactor moves the connection to Dispatched and submits a task to
// the worker pool that runs work(), writes the queued response bytes,
// and returns the connection to Idle. The reactor keeps polling other
// connections meanwhile and extracts nothing more from this one until
// it is back in Idle.
type Handler interface {
	TryExtract(conn *connfsm.Conn) (work func(), ok bool, err error)
}

// poller is the minimal platform-specific readiness primitive the
// reactor drives. Implementations: epollPoller (Linux, see
// reactor_linux.go) and fallbackPoller (other platforms, see
// reactor_fallback.go).
type poller interface {
	add(fd int, conn *connfsm.Conn) error
	remove(fd int) error
	wait(timeoutMs int) ([]*connfsm.Conn, error)
	close() error
	// ownsRead reports whether wait()'s returned connections already
	// have their available bytes appended (true for the goroutine-per-
	// connection fallback poller, which must itself block on Read),
	// or whether the reactor's own goroutine still needs to perform
	// the socket read (true epoll readiness semantics: the fd is
	// merely known to be readable).
	ownsRead() bool
}

// Reactor is the single-threaded accept/read/write event loop.
type Reactor struct {
	listener net.Listener
	handler  Handler
	pool     *workerpool.Pool
	bufs     *bufpool.Manager
	logger   *slog.Logger

	poller poller

	mu    sync.Mutex
	conns map[string]*connfsm.Conn

	idleTimeout time.Duration

	housekeeping []func(now time.Time)

	stopCh chan struct{}
	doneCh chan struct{}
}

// Options configures a Reactor.
type Options struct {
	IdleTimeout time.Duration
}

// New constructs a Reactor bound to an already-listening socket.
func New(listener net.Listener, handler Handler, pool *workerpool.Pool, bufs *bufpool.Manager, logger *slog.Logger, opts Options) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	return &Reactor{
		listener:    listener,
		handler:     handler,
		pool:        pool,
		bufs:        bufs,
		logger:      logger,
		poller:      p,
		conns:       make(map[string]*connfsm.Conn),
		idleTimeout: opts.IdleTimeout,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// OnHousekeeping registers fn to be invoked about once a second from
// the Run loop, after the idle-connection sweep, giving collaborators
// like WebSocketHub's ping/pong liveness check a place to run without
// their own goroutine or timer.
func (r *Reactor) OnHousekeeping(fn func(now time.Time)) {
	r.housekeeping = append(r.housekeeping, fn)
}

// Run drives the accept/poll loop until ctx is canceled or Stop is
// called. It blocks the calling goroutine, matching the teacher's
// single-reactor-goroutine model.
func (r *Reactor) Run(ctx context.Context) error {
	defer close(r.doneCh)

	acceptErrCh := make(chan error, 1)
	go r.acceptLoop(acceptErrCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil
		case err := <-acceptErrCh:
			return err
		case <-ticker.C:
			now := time.Now()
			r.sweepIdle(now)
			for _, fn := range r.housekeeping {
				fn(now)
			}
		default:
		}

		ready, err := r.poller.wait(250)
		if err != nil {
			r.logger.Error("reactor poll error", slog.String("err", err.Error()))
			continue
		}
		for _, conn := range ready {
			if r.poller.ownsRead() {
				r.processBuffered(conn)
			} else {
				r.service(conn)
			}
		}
	}
}

func (r *Reactor) acceptLoop(errCh chan<- error) {
	for {
		raw, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
			}
			errCh <- err
			return
		}
		conn := connfsm.New(raw)
		r.mu.Lock()
		r.conns[conn.ID] = conn
		r.mu.Unlock()

		if fd, ok := fdOf(raw); ok {
			if err := r.poller.add(fd, conn); err != nil {
				r.logger.Warn("reactor: poller add failed", slog.String("err", err.Error()))
				conn.Close()
				r.forget(conn)
			}
		} else {
			// Non-fd transports (e.g. net.Pipe in tests) fall back to
			// a dedicated goroutine per connection.
			go r.serviceLoopNoFD(conn)
		}
	}
}

// serviceLoopNoFD is used for connections the platform poller can't
// register by file descriptor (tests using net.Pipe, for instance).
func (r *Reactor) serviceLoopNoFD(conn *connfsm.Conn) {
	buf := make([]byte, 16*1024)
	for {
		n, err := conn.Raw.Read(buf)
		if n > 0 {
			conn.AppendRead(buf[:n])
			r.processBuffered(conn)
		}
		if err != nil {
			r.forget(conn)
			conn.Close()
			return
		}
	}
}

// service is called by the poll loop whenever conn's fd has become
// readable: it performs the one socket read and then extracts as many
// complete units of work as are now buffered.
func (r *Reactor) service(conn *connfsm.Conn) {
	if conn.State() == connfsm.StateClosed {
		return
	}
	buf := r.bufs.Get(16 * 1024)
	n, err := conn.Raw.Read(buf)
	if n > 0 {
		conn.AppendRead(buf[:n])
	}
	r.bufs.Put(buf)
	if err != nil {
		r.closeConn(conn)
		return
	}
	r.processBuffered(conn)
}

// processBuffered extracts and dispatches every complete unit of work
// currently sitting in conn's read buffer.
func (r *Reactor) processBuffered(conn *connfsm.Conn) {
	for {
		if !conn.TryTransition(connfsm.StateReading) {
			if conn.State() != connfsm.StateIdle {
				break
			}
		}
		work, ok, err := r.handler.TryExtract(conn)
		if err != nil {
			r.logger.Warn("reactor: extract error", slog.String("conn", conn.ID), slog.String("err", err.Error()))
			r.closeConn(conn)
			return
		}
		if !ok {
			conn.TryTransition(connfsm.StateIdle)
			break
		}
		conn.TryTransition(connfsm.StateDispatched)
		submitErr := r.pool.Submit(func() {
			work()
			conn.TryTransition(connfsm.StateWriting)
			r.flushWrites(conn)
			conn.TryTransition(connfsm.StateIdle)
		})
		if submitErr != nil {
			r.closeConn(conn)
			return
		}
	}
}

func (r *Reactor) flushWrites(conn *connfsm.Conn) {
	for _, chunk := range conn.DrainWrites() {
		n, err := conn.Raw.Write(chunk)
		conn.RecordWrite(n)
		if err != nil {
			r.closeConn(conn)
			return
		}
	}
}

func (r *Reactor) closeConn(conn *connfsm.Conn) {
	if fd, ok := fdOf(conn.Raw); ok {
		_ = r.poller.remove(fd)
	}
	conn.Close()
	r.forget(conn)
}

func (r *Reactor) forget(conn *connfsm.Conn) {
	r.mu.Lock()
	delete(r.conns, conn.ID)
	r.mu.Unlock()
}

func (r *Reactor) sweepIdle(now time.Time) {
	r.mu.Lock()
	stale := make([]*connfsm.Conn, 0)
	for _, c := range r.conns {
		if now.Sub(c.LastActivity()) > r.idleTimeout {
			stale = append(stale, c)
		}
	}
	r.mu.Unlock()
	for _, c := range stale {
		r.closeConn(c)
	}
}

// ConnCount reports the number of currently tracked connections.
func (r *Reactor) ConnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Stop halts the accept/poll loop and closes the poller.
func (r *Reactor) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	_ = r.poller.close()
	<-r.doneCh
}
