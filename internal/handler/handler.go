// Package handler turns a fully parsed request sitting on an
// engine.Connection into response bytes, per spec.md §4.5's per-method
// contract: static GET/HEAD, upload POST, DELETE, and CGI dispatch.
// Grounded on the teacher's router.Context response helpers
// (server/router/context.go in the retrieval pack) and its status-table
// shape, generalized from a Session-backed zero-alloc writer to one
// building spec.md's config-driven responses against a real filesystem.
package handler

import (
	"os"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nanonginx/nanonginx/internal/config"
	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/httpresp"
	"github.com/nanonginx/nanonginx/internal/router"
)

// Handler wires a resolved configuration model into the
// engine.RequestHandler callback the Reactor drives on every completed
// request.
type Handler struct {
	model *config.Model
	log   *zap.Logger
}

// New builds a Handler bound to a configuration model.
func New(model *config.Model, log *zap.Logger) *Handler {
	return &Handler{model: model, log: log}
}

// Resolve is the engine.ServerResolver the Reactor uses during header
// parsing — kept here rather than in router so cmd/nanonginx only has to
// wire one Handler value into the engine.
func (h *Handler) Resolve(local config.Endpoint, host string) *config.Server {
	return router.Resolve(h.model, local, host)
}

// Handle is the engine.RequestHandler: it resolves the location, applies
// the return/method/dispatch rules in order, and queues the response onto
// conn's outbound buffer.
func (h *Handler) Handle(conn *engine.Connection) {
	server := conn.ChosenServer
	if server == nil {
		h.writeError(conn, 404, nil)
		return
	}

	loc := router.ResolveLocation(server, conn.State.Path)
	ctx := router.BuildContext(server, loc)

	if ctx.Return != nil {
		h.writeReturn(conn, ctx.Return)
		return
	}

	method := conn.State.Method
	if !ctx.AllowsMethod(method) {
		h.writeError(conn, 405, []httpresp.Header{{Name: "Allow", Value: strings.Join(ctx.AllowedMethods, ", ")}})
		return
	}

	switch method {
	case "GET", "HEAD":
		h.serveStatic(conn, ctx, method == "HEAD")
	case "POST":
		h.servePost(conn, ctx)
	case "DELETE":
		h.serveDelete(conn, ctx)
	default:
		h.writeError(conn, 501, nil)
	}
}

// servePost dispatches to CGI when the request path's extension maps to
// an interpreter, otherwise treats the body as an upload per spec.md
// §4.5's upload contract, into the resolved root when the location sets no
// upload_dir.
func (h *Handler) servePost(conn *engine.Connection, ctx *router.RequestContext) {
	if ctx.CGIMap != nil {
		if interp, ok := ctx.CGIMap[path.Ext(conn.State.Path)]; ok {
			h.serveCGI(conn, ctx, interp)
			return
		}
	}
	if ctx.UploadDir == "" {
		ctx.UploadDir = ctx.Root
	}
	h.serveUpload(conn, ctx)
}

func (h *Handler) writeReturn(conn *engine.Connection, ret *config.Return) {
	var body []byte
	if ret.Status < 300 || ret.Status >= 400 {
		body = []byte(ret.Target)
	}
	headers := []httpresp.Header{{Name: "Content-Length", Value: strconv.Itoa(len(body))}}
	if ret.Status >= 300 && ret.Status < 400 && ret.Target != "" {
		headers = append(headers, httpresp.Header{Name: "Location", Value: ret.Target})
	}
	headers = append(headers, httpresp.Header{Name: "Connection", Value: h.connectionValue(conn)})
	conn.QueueOut(httpresp.Build(conn.State.Version, ret.Status, headers, body))
}

func (h *Handler) writeError(conn *engine.Connection, status int, extra []httpresp.Header) {
	body := []byte("<html><body><h1>" + strconv.Itoa(status) + " " + httpresp.Reason(status) + "</h1></body></html>\n")
	if page, ok := h.errorPage(conn, status); ok {
		body = page
	}
	headers := append([]httpresp.Header{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Content-Length", Value: strconv.Itoa(len(body))},
		{Name: "Connection", Value: h.connectionValue(conn)},
	}, extra...)
	conn.QueueOut(httpresp.Build(conn.State.Version, status, headers, body))
}

// errorPage reads a configured error_page target off disk, if the
// resolved server declares one for this status, per spec.md §4.6.
func (h *Handler) errorPage(conn *engine.Connection, status int) ([]byte, bool) {
	server := conn.ChosenServer
	if server == nil || server.ErrorPages == nil {
		return nil, false
	}
	target, ok := server.ErrorPages[status]
	if !ok {
		return nil, false
	}
	full := path.Join(server.Root, target)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false
	}
	return data, true
}

func buildNoContent(version, connValue string) []byte {
	headers := []httpresp.Header{
		{Name: "Content-Length", Value: "0"},
		{Name: "Connection", Value: connValue},
	}
	return httpresp.Build(version, 204, headers, nil)
}

func (h *Handler) connectionValue(conn *engine.Connection) string {
	if conn.ShouldClose {
		return "close"
	}
	return "keep-alive"
}
