//go:build !linux

// Non-Linux fallback poller: every registered connection gets its own
// blocking-read goroutine instead of a real readiness multiplexer,
// mirroring the teacher's own non-Linux reactor stub behavior.
//
// Author: momentics <momentics@gmail.com>
package reactor

import (
	"sync"

	"github.com/momentics/hioload-gateway/internal/connfsm"
)

type fallbackPoller struct {
	mu      sync.Mutex
	ready   chan *connfsm.Conn
	closing chan struct{}
}

func newPoller() (poller, error) {
	return &fallbackPoller{
		ready:   make(chan *connfsm.Conn, 256),
		closing: make(chan struct{}),
	}, nil
}

func (p *fallbackPoller) add(fd int, conn *connfsm.Conn) error {
	go p.watch(conn)
	return nil
}

func (p *fallbackPoller) watch(conn *connfsm.Conn) {
	buf := make([]byte, 1)
	for {
		select {
		case <-p.closing:
			return
		default:
		}
		n, err := conn.Raw.Read(buf)
		if n > 0 {
			conn.AppendRead(buf[:n])
			select {
			case p.ready <- conn:
			case <-p.closing:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *fallbackPoller) remove(fd int) error {
	return nil
}

func (p *fallbackPoller) wait(timeoutMs int) ([]*connfsm.Conn, error) {
	select {
	case c := <-p.ready:
		return []*connfsm.Conn{c}, nil
	default:
		return nil, nil
	}
}

func (p *fallbackPoller) close() error {
	close(p.closing)
	return nil
}

func (p *fallbackPoller) ownsRead() bool { return true }
