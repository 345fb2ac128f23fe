package handler

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/httpresp"
	"github.com/nanonginx/nanonginx/internal/router"
)

// serveUpload implements POST-as-upload per spec.md §4.5's upload_dir
// contract: the request body is written verbatim under upload_dir, named
// from the last path segment. A name that already exists is overwritten
// and answered with 200 OK; a new name is created and answered with 201
// Created. A request with no usable name segment gets a generated
// upload_<unix-time>_<uuid-suffix>.txt name, per SPEC_FULL.md §4.5.
func (h *Handler) serveUpload(conn *engine.Connection, ctx *router.RequestContext) {
	if err := os.MkdirAll(ctx.UploadDir, 0o755); err != nil {
		h.writeError(conn, 500, nil)
		return
	}

	name := filepath.Base(conn.State.Path)
	existed := false
	if name == "" || name == "/" || name == "." {
		name = "upload_" + strconv.FormatInt(time.Now().Unix(), 10) + "_" + uuid.NewString() + ".txt"
	} else if _, err := os.Stat(filepath.Join(ctx.UploadDir, name)); err == nil {
		existed = true
	}
	dest := filepath.Join(ctx.UploadDir, name)

	if err := os.WriteFile(dest, conn.State.Body, 0o644); err != nil {
		h.writeError(conn, 500, nil)
		return
	}

	status := 201
	verb := "created"
	if existed {
		status = 200
		verb = "replaced"
	}

	body := []byte(verb + " " + filepath.Base(dest) + "\n")
	headers := []httpresp.Header{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "Content-Length", Value: strconv.Itoa(len(body))},
		{Name: "Connection", Value: h.connectionValue(conn)},
	}
	conn.QueueOut(httpresp.Build(conn.State.Version, status, headers, body))
}
