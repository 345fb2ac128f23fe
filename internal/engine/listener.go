package engine

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nanonginx/nanonginx/internal/config"
)

// Listener is a single listening socket bound to one endpoint, shared
// across every virtual server that references it, per spec.md §4.2.
type Listener struct {
	FD       int
	Endpoint config.Endpoint
}

const backlog = 128

// NewListener binds, sets SO_REUSEADDR, listens, and sets the socket
// non-blocking. Grounded on the teacher's listenSocket.
func NewListener(ep config.Endpoint) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setsockopt(SO_REUSEADDR)")
	}

	addr, err := parseIPv4(ep.Address)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: int(ep.Port), Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %s", ep)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "listen %s", ep)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "set listener non-blocking")
	}

	if ep.Port == 0 {
		if bound, err := boundPort(fd); err == nil {
			ep.Port = bound
		}
	}
	return &Listener{FD: fd, Endpoint: ep}, nil
}

// boundPort reads back the kernel-assigned port after binding with port 0,
// used by tests that need an ephemeral listener.
func boundPort(fd int) (uint16, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, errors.New("not an IPv4 socket address")
	}
	return uint16(sa4.Port), nil
}

// Accept accepts one pending connection, non-blocking.
func (l *Listener) Accept() (int, net.IP, error) {
	fd, sa, err := unix.Accept(l.FD)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	var ip net.IP
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		ip = net.IPv4(sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3])
	}
	return fd, ip, nil
}

func (l *Listener) Close() error {
	return unix.Close(l.FD)
}

func parseIPv4(addr string) ([4]byte, error) {
	if addr == "" || addr == "0.0.0.0" || addr == "*" {
		return [4]byte{0, 0, 0, 0}, nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return [4]byte{}, errors.Errorf("invalid listen address %q", addr)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return [4]byte{}, errors.Errorf("listen address %q is not IPv4", addr)
	}
	return [4]byte{ip4[0], ip4[1], ip4[2], ip4[3]}, nil
}

// portString formats a port number; tests use it to build dial addresses.
func portString(p uint16) string {
	return strconv.Itoa(int(p))
}
