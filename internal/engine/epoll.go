// Package engine owns the Reactor: the single-threaded event loop that
// multiplexes readiness across every listener and connection, per
// spec.md §4.1. Grounded on the teacher's server/engine package, replacing
// its goroutine worker pool (shared-memory concurrency the spec's §5
// explicitly rules out for this system) with one inline loop, and its raw
// syscall epoll calls with golang.org/x/sys/unix's typed wrapper.
package engine

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// poller wraps one epoll instance.
type poller struct {
	fd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &poller{fd: fd}, nil
}

func (p *poller) add(fd int, events uint32) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (p *poller) mod(fd int, events uint32) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *poller) wait(events []unix.EpollEvent, timeoutMS int) (int, error) {
	return unix.EpollWait(p.fd, events, timeoutMS)
}

func (p *poller) close() error {
	return unix.Close(p.fd)
}
