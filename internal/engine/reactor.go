package engine

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nanonginx/nanonginx/internal/config"
	"github.com/nanonginx/nanonginx/internal/httpparse"
	"github.com/nanonginx/nanonginx/internal/httpresp"
)

// ServerResolver resolves the virtual server for a connection's local
// endpoint and the request's Host header, per spec.md §4.4. It is supplied
// by the router package at startup; engine itself has no routing logic.
type ServerResolver func(local config.Endpoint, host string) *config.Server

// RequestHandler turns a fully parsed request sitting in conn.State into
// response bytes appended to conn.OutBuf. Supplied by the handler package.
type RequestHandler func(conn *Connection)

const (
	maxEvents      = 256
	pollTimeoutMS  = 1000
	defaultIdleTTL = 60 * time.Second
)

// Reactor drives one OS thread multiplexing every listener and connection
// through epoll, per spec.md §4.1. Grounded on the teacher's StartEpoll
// loop, generalized to run entirely inline — no worker-pool goroutines —
// to honor the single-threaded, lock-free concurrency model of spec.md §5.
type Reactor struct {
	log *zap.Logger

	poller    *poller
	listeners map[int]*Listener
	conns     map[int]*Connection

	resolve ServerResolver
	handle  RequestHandler
	parser  httpparse.Parser

	idleTimeout time.Duration
}

// New constructs a Reactor. resolve and handle are required; the reactor
// is inert until listeners are added and Run is called.
func New(log *zap.Logger, resolve ServerResolver, handle RequestHandler) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, errors.Wrap(err, "creating epoll instance")
	}
	return &Reactor{
		log:         log,
		poller:      p,
		listeners:   map[int]*Listener{},
		conns:       map[int]*Connection{},
		resolve:     resolve,
		handle:      handle,
		idleTimeout: defaultIdleTTL,
	}, nil
}

// AddListener registers a bound Listener with the reactor's readiness set.
func (r *Reactor) AddListener(l *Listener) error {
	if err := r.poller.add(l.FD, unix.EPOLLIN); err != nil {
		return errors.Wrapf(err, "registering listener %s", l.Endpoint)
	}
	r.listeners[l.FD] = l
	return nil
}

// Run enters the event loop and does not return under normal operation.
// It returns a non-nil error only when the readiness facility itself
// fails for a reason other than EINTR, per spec.md §4.1's failure
// semantics.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := r.poller.wait(events, pollTimeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "epoll_wait")
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			mask := events[i].Events

			if l, ok := r.listeners[fd]; ok {
				r.acceptAll(l)
				continue
			}
			conn, ok := r.conns[fd]
			if !ok {
				continue
			}

			if mask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				r.closeConnection(conn)
				continue
			}
			if mask&unix.EPOLLIN != 0 {
				r.onReadable(conn)
			}
			if !conn.Closing && mask&unix.EPOLLOUT != 0 {
				r.onWritable(conn)
			}
		}

		r.sweepTimeouts()
	}
}

// acceptAll drains every pending connection on a listener — accept is
// edge-safe per spec.md §4.1 step 1.
func (r *Reactor) acceptAll(l *Listener) {
	for {
		fd, ip, err := l.Accept()
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			r.log.Debug("accept error", zap.String("endpoint", l.Endpoint.String()), zap.Error(err))
			return
		}
		conn := NewConnection(fd, l.Endpoint, ip)
		if err := r.poller.add(fd, unix.EPOLLIN); err != nil {
			r.log.Debug("registering connection failed", zap.Error(err))
			unix.Close(fd)
			continue
		}
		r.conns[fd] = conn
		r.log.Debug("accepted connection", zap.Int("fd", fd), zap.String("listener", l.Endpoint.String()))
	}
}

// onReadable drains recv into in_buf until EAGAIN/EWOULDBLOCK or closure,
// then drives the parser to quiescence, per spec.md §4.1 step 2.
func (r *Reactor) onReadable(conn *Connection) {
	conn.Compact()
	for {
		buf := conn.GrowForRead()
		if len(buf) == 0 {
			break
		}
		n, err := unix.Read(conn.FD, buf)
		if n > 0 {
			conn.CommitRead(n)
			conn.Touch()
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			r.closeConnection(conn)
			return
		}
		if n == 0 {
			r.closeConnection(conn)
			return
		}
	}

	r.driveParser(conn)

	if conn.PendingWrite() {
		r.onWritable(conn)
	}
	if !conn.Closing {
		r.updateInterest(conn)
	}
}

// driveParser runs the incremental parser to quiescence: either it needs
// more bytes, it produced a response (synthesized error or dispatched
// request), or the connection must close.
func (r *Reactor) driveParser(conn *Connection) {
	for {
		if conn.Closing {
			return
		}
		buf := conn.Unparsed()
		n, ev, perr := r.parser.Step(buf, &conn.State, conn.Limits)
		if perr != nil {
			r.failRequest(conn, perr)
			return
		}
		if n > 0 {
			conn.Advance(n)
		}
		if n == 0 && ev == httpparse.EventNone {
			return // need more bytes
		}

		switch ev {
		case httpparse.EventNeedHostResolution:
			host, _ := conn.State.Get("host")
			host = stripPort(host)
			server := r.resolve(conn.LocalEndpoint, host)
			conn.ChosenServer = server
			maxBody := int64(1 << 20)
			if server != nil && server.ClientMaxBodySize > 0 {
				maxBody = server.ClientMaxBodySize
			}
			if perr := r.parser.DecideBody(&conn.State, maxBody); perr != nil {
				r.failRequest(conn, perr)
				return
			}
			r.maybeSendContinue(conn)
		}

		if conn.State.Phase == httpparse.PhaseDispatching {
			r.dispatch(conn)
			if conn.Closing {
				return
			}
		}
	}
}

// maybeSendContinue emits exactly one 100 Continue, after headers are
// complete and only once the body-length check has passed, per spec.md
// §4.3's Expect handling.
func (r *Reactor) maybeSendContinue(conn *Connection) {
	if conn.ExpectContinueSent {
		return
	}
	if conn.State.Phase != httpparse.PhaseBodyLength && conn.State.Phase != httpparse.PhaseChunkSize {
		return
	}
	v, ok := conn.State.Get("expect")
	if !ok || !strings.EqualFold(v, "100-continue") {
		return
	}
	conn.QueueOut(httpresp.Build(conn.State.Version, 100, nil, nil))
	conn.ExpectContinueSent = true
}

// dispatch hands a fully parsed request to the configured RequestHandler,
// then resets connection state for the next pipelined request unless the
// connection must close.
func (r *Reactor) dispatch(conn *Connection) {
	if conn.State.Version == "HTTP/1.0" && !strings.EqualFold(headerOrEmpty(&conn.State, "connection"), "keep-alive") {
		conn.ShouldClose = true
	}
	r.handle(conn)

	if conn.ShouldClose {
		conn.Closing = true
		return
	}
	conn.ResetForNextRequest()
}

func headerOrEmpty(st *httpparse.State, name string) string {
	v, _ := st.Get(name)
	return v
}

// failRequest synthesizes the appropriate error response for a parse
// error and flags the connection to close once it drains, per spec.md §7.
func (r *Reactor) failRequest(conn *Connection, perr *httpparse.ParseError) {
	version := conn.State.Version
	if version == "" {
		version = "HTTP/1.1"
	}
	conn.QueueOut(httpresp.BuildSimple(version, perr.Status, perr.Close))
	conn.ShouldClose = perr.Close
	conn.Closing = true
}

// onWritable drains out_buf into send until EAGAIN/EWOULDBLOCK or
// completion, per spec.md §4.1 step 3.
func (r *Reactor) onWritable(conn *Connection) {
	for conn.PendingWrite() {
		n, err := unix.Write(conn.FD, conn.OutBuf[conn.OutSent:])
		if n > 0 {
			conn.OutSent += n
			conn.Touch()
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				r.updateInterest(conn)
				return
			}
			r.closeConnection(conn)
			return
		}
		if n == 0 {
			break
		}
	}
	conn.OutBuf = conn.OutBuf[:0]
	conn.OutSent = 0

	if conn.Closing {
		r.closeConnection(conn)
		return
	}
	r.updateInterest(conn)
}

// updateInterest toggles EPOLLOUT registration based on whether bytes
// remain queued to send.
func (r *Reactor) updateInterest(conn *Connection) {
	events := uint32(unix.EPOLLIN)
	if conn.PendingWrite() {
		events |= unix.EPOLLOUT
	}
	if err := r.poller.mod(conn.FD, events); err != nil {
		r.log.Debug("epoll_ctl mod failed", zap.Int("fd", conn.FD), zap.Error(err))
	}
}

// sweepTimeouts walks every connection whose header phase has not
// completed; any whose last_activity is older than the idle threshold
// receives a 408 and is moved to Closing, per spec.md §4.1 step 4.
func (r *Reactor) sweepTimeouts() {
	now := time.Now()
	for _, conn := range r.conns {
		if conn.Closing {
			continue
		}
		if !conn.HeadersInFlight() {
			continue
		}
		if now.Sub(conn.LastActivity) < r.idleTimeout {
			continue
		}
		version := conn.State.Version
		if version == "" {
			version = "HTTP/1.1"
		}
		conn.QueueOut(httpresp.BuildSimple(version, 408, true))
		conn.ShouldClose = true
		conn.Closing = true
		r.onWritable(conn)
	}
}

func (r *Reactor) closeConnection(conn *Connection) {
	r.poller.del(conn.FD)
	unix.Close(conn.FD)
	delete(r.conns, conn.FD)
	r.log.Debug("closed connection", zap.Int("fd", conn.FD))
}

func stripPort(hostHeader string) string {
	for i := len(hostHeader) - 1; i >= 0; i-- {
		if hostHeader[i] == ':' {
			return hostHeader[:i]
		}
		if hostHeader[i] == ']' { // IPv6 literal without a port
			break
		}
	}
	return hostHeader
}
