package engine

import (
	"net"
	"time"

	"github.com/nanonginx/nanonginx/internal/config"
	"github.com/nanonginx/nanonginx/internal/httpparse"
)

// Connection is the per-client state named in spec.md §3: inbound and
// outbound buffers, parser state, the request accumulator (folded into
// State), the resolved virtual server, and the flags that drive
// keep-alive vs. close. Grounded on the teacher's engine.Session, replaced
// from a fixed [1<<16-1]byte array shared via a sync.Pool (needed only
// because the teacher's worker-pool goroutines raced on buffers) with a
// plain growable slice, since this reactor is single-threaded and no
// cross-goroutine reuse is required.
type Connection struct {
	FD            int
	LocalEndpoint config.Endpoint
	RemoteAddr    net.IP

	InBuf    []byte
	InParsed int // bytes consumed by the parser
	InFilled int // bytes actually holding data

	OutBuf  []byte
	OutSent int

	State  httpparse.State
	Limits httpparse.Limits

	ChosenServer       *config.Server
	ShouldClose        bool
	ExpectContinueSent bool
	Closing            bool

	LastActivity time.Time
}

// NewConnection allocates a fresh Connection for an accepted fd.
func NewConnection(fd int, local config.Endpoint, remote net.IP) *Connection {
	c := &Connection{
		FD:            fd,
		LocalEndpoint: local,
		RemoteAddr:    remote,
		InBuf:         make([]byte, 4096),
		Limits:        httpparse.DefaultLimits,
		LastActivity:  time.Now(),
	}
	c.State.Reset()
	return c
}

// Unparsed returns the slice of InBuf the parser has not yet consumed.
func (c *Connection) Unparsed() []byte {
	return c.InBuf[c.InParsed:c.InFilled]
}

// Advance records that the parser consumed n more bytes.
func (c *Connection) Advance(n int) {
	c.InParsed += n
}

// Compact slides any unconsumed bytes to the front of InBuf, reclaiming
// the space of bytes the parser has already consumed.
func (c *Connection) Compact() {
	if c.InParsed == 0 {
		return
	}
	if c.InParsed == c.InFilled {
		c.InParsed, c.InFilled = 0, 0
		return
	}
	rem := c.InFilled - c.InParsed
	copy(c.InBuf, c.InBuf[c.InParsed:c.InFilled])
	c.InParsed, c.InFilled = 0, rem
}

// GrowForRead ensures InBuf has room for at least one more read, up to
// MAX_REQUEST_SIZE, and returns the writable tail slice. An empty slice
// means the buffer is full: the caller stops reading, lets the parser
// consume what is buffered, and reads again once Compact has reclaimed the
// consumed bytes. The request-line and header limits are far below this
// bound, so their error responses are produced before it is reached.
func (c *Connection) GrowForRead() []byte {
	if c.InFilled >= httpparse.MaxRequestSize {
		return nil
	}
	if len(c.InBuf)-c.InFilled < 2048 {
		target := len(c.InBuf) * 2
		if target < 4096 {
			target = 4096
		}
		if target > httpparse.MaxRequestSize {
			target = httpparse.MaxRequestSize
		}
		if target > len(c.InBuf) {
			grown := make([]byte, target)
			copy(grown, c.InBuf[:c.InFilled])
			c.InBuf = grown
		}
	}
	return c.InBuf[c.InFilled:]
}

// CommitRead records that n bytes landed in the slice GrowForRead returned.
func (c *Connection) CommitRead(n int) {
	c.InFilled += n
}

// QueueOut appends bytes to the outbound buffer.
func (c *Connection) QueueOut(b []byte) {
	c.OutBuf = append(c.OutBuf, b...)
}

// PendingWrite reports whether bytes remain to be sent.
func (c *Connection) PendingWrite() bool {
	return c.OutSent < len(c.OutBuf)
}

// ResetForNextRequest clears per-request state on the transition back to
// ReadingRequestLine. Per the design note in spec.md §9, every per-request
// flag must be cleared here, including chunked/content-length carried
// inside State.Reset and ExpectContinueSent — leaving any of them set is
// exactly the defect the spec calls out.
func (c *Connection) ResetForNextRequest() {
	c.State.Reset()
	c.ExpectContinueSent = false
	c.ChosenServer = nil
	c.Compact()
}

// Touch records successful I/O activity for idle-timeout accounting.
func (c *Connection) Touch() {
	c.LastActivity = time.Now()
}

// HeadersInFlight reports whether the connection has not yet completed
// reading headers for the current request — the window the idle timeout
// in spec.md §5 applies to.
func (c *Connection) HeadersInFlight() bool {
	return c.State.Phase == httpparse.PhaseRequestLine || c.State.Phase == httpparse.PhaseHeaders
}
