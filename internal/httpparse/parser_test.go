package httpparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drive feeds the whole request through Step, performing the
// host-resolution handoff itself (as Connection would) with an unlimited
// body budget, and returns the final state.
func drive(t *testing.T, raw string, maxBody int64) (*State, *ParseError) {
	t.Helper()
	p := &Parser{}
	st := &State{}
	st.Reset()
	buf := []byte(raw)
	pos := 0

	for {
		n, ev, perr := p.Step(buf[pos:], st, DefaultLimits)
		if perr != nil {
			return st, perr
		}
		if n == 0 && ev == EventNone {
			return st, nil // stalled: incomplete request
		}
		pos += n
		if ev == EventNeedHostResolution {
			if perr := p.DecideBody(st, maxBody); perr != nil {
				return st, perr
			}
		}
		if st.Phase == PhaseDispatching {
			return st, nil
		}
	}
}

func TestStep_SimpleGET(t *testing.T) {
	st, perr := drive(t, "GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n", 1<<20)
	require.Nil(t, perr)
	assert.Equal(t, PhaseDispatching, st.Phase)
	assert.Equal(t, "GET", st.Method)
	assert.Equal(t, "/index.html", st.Path)
	assert.Equal(t, "x", st.HostValue)
}

func TestStep_QueryAndPercentDecoding(t *testing.T) {
	st, perr := drive(t, "GET /a%20b?x=1%2B2 HTTP/1.1\r\nHost: x\r\n\r\n", 1<<20)
	require.Nil(t, perr)
	assert.Equal(t, "/a b", st.Path)
	assert.Equal(t, "x=1+2", st.Query)
}

func TestStep_MalformedPercentEncoding(t *testing.T) {
	_, perr := drive(t, "GET /a%2 HTTP/1.1\r\nHost: x\r\n\r\n", 1<<20)
	require.NotNil(t, perr)
	assert.Equal(t, 400, perr.Status)
}

func TestStep_MissingHostOnHTTP11(t *testing.T) {
	_, perr := drive(t, "GET / HTTP/1.1\r\n\r\n", 1<<20)
	require.NotNil(t, perr)
	assert.Equal(t, 400, perr.Status)
}

func TestStep_HTTP10NoHostRequired(t *testing.T) {
	st, perr := drive(t, "GET / HTTP/1.0\r\n\r\n", 1<<20)
	require.Nil(t, perr)
	assert.Equal(t, PhaseDispatching, st.Phase)
}

func TestStep_UnrecognizedMethod(t *testing.T) {
	_, perr := drive(t, "TRACE / HTTP/1.1\r\nHost: x\r\n\r\n", 1<<20)
	require.NotNil(t, perr)
	assert.Equal(t, 501, perr.Status)
}

func TestStep_ContentLengthBody(t *testing.T) {
	st, perr := drive(t, "POST /up HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello", 1<<20)
	require.Nil(t, perr)
	assert.Equal(t, "hello", string(st.Body))
}

func TestStep_ContentLengthExceedsLimit(t *testing.T) {
	_, perr := drive(t, "POST /up HTTP/1.1\r\nHost: x\r\nContent-Length: 2048\r\n\r\n", 1024)
	require.NotNil(t, perr)
	assert.Equal(t, 413, perr.Status)
}

func TestStep_ChunkedBody(t *testing.T) {
	raw := "POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	st, perr := drive(t, raw, 1<<20)
	require.Nil(t, perr)
	assert.Equal(t, "hello world", string(st.Body))
}

func TestStep_ChunkedExceedsLimit(t *testing.T) {
	raw := "POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"a\r\n0123456789\r\n0\r\n\r\n"
	_, perr := drive(t, raw, 5)
	require.NotNil(t, perr)
	assert.Equal(t, 413, perr.Status)
}

func TestStep_DuplicateHeaderLastValueWins(t *testing.T) {
	st, perr := drive(t, "GET / HTTP/1.1\r\nHost: x\r\nX-Tag: one\r\nX-Tag: two\r\n\r\n", 1<<20)
	require.Nil(t, perr)
	v, ok := st.Get("x-tag")
	require.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestStep_IncompleteRequestWaitsForMore(t *testing.T) {
	st, perr := drive(t, "GET /partial HTTP/1.1\r\nHost: loc", 1<<20)
	require.Nil(t, perr)
	assert.Equal(t, PhaseHeaders, st.Phase)
}

func TestStep_BareLFIsNotALineTerminator(t *testing.T) {
	// "\n" without "\r" must not terminate the request line.
	idx := indexCRLF([]byte("GET / HTTP/1.1\nHost: x\r\n\r\n"))
	assert.Equal(t, -1, idx)
}

func TestStep_RequestLineTooLong(t *testing.T) {
	raw := "GET /" + repeat("a", DefaultLimits.MaxStartLine+1) + " HTTP/1.1\r\nHost: x\r\n\r\n"
	_, perr := drive(t, raw, 1<<20)
	require.NotNil(t, perr)
	assert.Equal(t, 414, perr.Status)
}

func repeat(s string, n int) string {
	b := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		b = append(b, s...)
	}
	return string(b)
}
