package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanonginx/nanonginx/internal/config"
	"github.com/nanonginx/nanonginx/internal/httpparse"
)

func TestConnection_GrowForReadAndCommit(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	buf := c.GrowForRead()
	require.NotEmpty(t, buf)
	copy(buf, []byte("GET / HTTP/1.1\r\n"))
	c.CommitRead(16)
	assert.Equal(t, 16, c.InFilled)
	assert.Equal(t, []byte("GET / HTTP/1.1\r\n"), c.Unparsed())
}

func TestConnection_GrowForReadCapsAtMaxRequestSize(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	c.InFilled = httpparse.MaxRequestSize
	assert.Empty(t, c.GrowForRead())
}

func TestConnection_AdvanceAndCompact(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	buf := c.GrowForRead()
	copy(buf, []byte("abcdef"))
	c.CommitRead(6)
	c.Advance(4)
	c.Compact()
	assert.Equal(t, 0, c.InParsed)
	assert.Equal(t, 2, c.InFilled)
	assert.Equal(t, []byte("ef"), c.Unparsed())
}

func TestConnection_CompactFullyConsumedResetsToZero(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	buf := c.GrowForRead()
	copy(buf, []byte("abc"))
	c.CommitRead(3)
	c.Advance(3)
	c.Compact()
	assert.Equal(t, 0, c.InParsed)
	assert.Equal(t, 0, c.InFilled)
}

func TestConnection_QueueOutAndPendingWrite(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	assert.False(t, c.PendingWrite())
	c.QueueOut([]byte("hello"))
	assert.True(t, c.PendingWrite())
	c.OutSent = len(c.OutBuf)
	assert.False(t, c.PendingWrite())
}

func TestConnection_ResetForNextRequestClearsState(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	c.State.Phase = httpparse.PhaseDispatching
	c.State.ContentLength = 42
	c.ChosenServer = &config.Server{}
	c.ExpectContinueSent = true

	c.ResetForNextRequest()

	assert.Equal(t, httpparse.PhaseRequestLine, c.State.Phase)
	assert.Equal(t, int64(-1), c.State.ContentLength)
	assert.Nil(t, c.ChosenServer)
	assert.False(t, c.ExpectContinueSent)
}

func TestConnection_HeadersInFlight(t *testing.T) {
	c := NewConnection(-1, config.Endpoint{Port: 80}, nil)
	assert.True(t, c.HeadersInFlight())
	c.State.Phase = httpparse.PhaseDispatching
	assert.False(t, c.HeadersInFlight())
}
