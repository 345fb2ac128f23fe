package engine

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nanonginx/nanonginx/internal/config"
)

// TestReactor_ServesOneRequest drives a real loopback connection through
// the epoll reactor end to end, in the style of the teacher's
// BenchmarkEpollHTTP (server/engine/engine_test.go in the retrieval pack).
func TestReactor_ServesOneRequest(t *testing.T) {
	ep := config.Endpoint{Address: "127.0.0.1", Port: 0}
	l, err := NewListener(ep)
	require.NoError(t, err)
	defer l.Close()

	resolve := func(local config.Endpoint, host string) *config.Server {
		return &config.Server{Root: "/tmp"}
	}
	handle := func(conn *Connection) {
		conn.QueueOut([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nOK"))
		conn.ShouldClose = true
	}

	r, err := New(zap.NewNop(), resolve, handle)
	require.NoError(t, err)
	require.NoError(t, r.AddListener(l))

	go r.Run()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+portString(l.Endpoint.Port), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	status, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "200 OK")
}
