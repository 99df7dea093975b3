//go:build linux

// Linux epoll(7) readiness poller.
//
// Grounded on the teacher's reactor/epoll_reactor.go and
// reactor/reactor_linux.go (EpollCreate1/EpollCtl/EpollWait via
// golang.org/x/sys/unix, fd-keyed callback dispatch), adapted to return
// ready connfsm.Conn values instead of invoking a stored FDCallback.
//
// Author: momentics <momentics@gmail.com>
package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-gateway/internal/connfsm"
)

type epollPoller struct {
	epfd int

	mu    sync.Mutex
	byFD  map[int]*connfsm.Conn
	events []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		byFD:   make(map[int]*connfsm.Conn),
		events: make([]unix.EpollEvent, 256),
	}, nil
}

func (p *epollPoller) add(fd int, conn *connfsm.Conn) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	p.mu.Lock()
	p.byFD[fd] = conn
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) remove(fd int) error {
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	p.mu.Lock()
	delete(p.byFD, fd)
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) wait(timeoutMs int) ([]*connfsm.Conn, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	ready := make([]*connfsm.Conn, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if conn, ok := p.byFD[fd]; ok {
			ready = append(ready, conn)
		}
	}
	p.mu.Unlock()
	return ready, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) ownsRead() bool { return false }
