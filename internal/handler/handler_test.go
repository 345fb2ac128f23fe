package handler

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nanonginx/nanonginx/internal/config"
	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/httpparse"
)

func newTestConn(method, path, version string) *engine.Connection {
	c := &engine.Connection{RemoteAddr: net.ParseIP("127.0.0.1")}
	c.State = httpparse.State{
		Method:  method,
		Path:    path,
		Version: version,
	}
	return c
}

func responseOf(c *engine.Connection) string {
	return string(c.OutBuf)
}

func TestHandle_ServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644))

	model := &config.Model{Servers: []*config.Server{{
		Listens:    []config.Endpoint{{Port: 80}},
		Root:       dir,
		IndexFiles: []string{"index.html"},
	}}}

	h := New(model, zap.NewNop())
	conn := newTestConn("GET", "/", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]

	h.Handle(conn)

	resp := responseOf(conn)
	assert.Contains(t, resp, "200 OK")
	assert.Contains(t, resp, "hello")
}

func TestHandle_MissingFileIs404(t *testing.T) {
	dir := t.TempDir()
	model := &config.Model{Servers: []*config.Server{{Root: dir}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("GET", "/missing.txt", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "404 Not Found")
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	dir := t.TempDir()
	model := &config.Model{Servers: []*config.Server{{
		Root: dir,
		Locations: []config.Location{
			{Path: "/", AllowedMethods: []string{"GET"}},
		},
	}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("DELETE", "/file.txt", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]

	h.Handle(conn)

	resp := responseOf(conn)
	assert.Contains(t, resp, "405 Method Not Allowed")
	assert.Contains(t, resp, "Allow: GET")
}

func TestHandle_DeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "victim.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	model := &config.Model{Servers: []*config.Server{{Root: dir}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("DELETE", "/victim.txt", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "204 No Content")
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestHandle_DeleteNonEmptyDirConflict(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f.txt"), []byte("x"), 0o644))

	model := &config.Model{Servers: []*config.Server{{Root: dir}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("DELETE", "/sub", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "409 Conflict")
}

func TestHandle_UploadWritesBody(t *testing.T) {
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")

	model := &config.Model{Servers: []*config.Server{{
		Root: dir,
		Locations: []config.Location{
			{Path: "/upload", UploadDir: uploadDir},
		},
	}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("POST", "/upload/note.txt", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]
	conn.State.Body = []byte("payload")

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "201 Created")
	data, err := os.ReadFile(filepath.Join(uploadDir, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestHandle_UploadExistingFileReturns200(t *testing.T) {
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "note.txt"), []byte("old"), 0o644))

	model := &config.Model{Servers: []*config.Server{{
		Root: dir,
		Locations: []config.Location{
			{Path: "/upload", UploadDir: uploadDir},
		},
	}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("POST", "/upload/note.txt", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]
	conn.State.Body = []byte("new")

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "200 OK")
	data, err := os.ReadFile(filepath.Join(uploadDir, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestHandle_UploadWithoutNameGeneratesTimestampedName(t *testing.T) {
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")

	model := &config.Model{Servers: []*config.Server{{
		Root: dir,
		Locations: []config.Location{
			{Path: "/", UploadDir: uploadDir},
		},
	}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("POST", "/", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]
	conn.State.Body = []byte("anon")

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "201 Created")
	entries, err := os.ReadDir(uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "upload_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".txt"))
}

func TestHandle_ReturnDirectiveShortCircuits(t *testing.T) {
	model := &config.Model{Servers: []*config.Server{{
		Root: "/unused",
		Locations: []config.Location{
			{Path: "/old", Return: &config.Return{Status: 301, Target: "/new"}},
		},
	}}}
	h := New(model, zap.NewNop())
	conn := newTestConn("GET", "/old/page", "HTTP/1.1")
	conn.ChosenServer = model.Servers[0]

	h.Handle(conn)

	resp := responseOf(conn)
	assert.Contains(t, resp, "301 Moved Permanently")
	assert.Contains(t, resp, "Location: /new")
}

func TestHandle_NoServerResolvedIs404(t *testing.T) {
	model := &config.Model{}
	h := New(model, zap.NewNop())
	conn := newTestConn("GET", "/", "HTTP/1.1")

	h.Handle(conn)

	assert.Contains(t, responseOf(conn), "404 Not Found")
}
