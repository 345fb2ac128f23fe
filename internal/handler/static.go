package handler

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/httpresp"
	"github.com/nanonginx/nanonginx/internal/mime"
	"github.com/nanonginx/nanonginx/internal/router"
)

// serveStatic implements GET/HEAD per spec.md §4.5: resolve the request
// path under the location/server root, serve an index file for
// directories, fall back to an autoindex listing, or 404/403.
func (h *Handler) serveStatic(conn *engine.Connection, ctx *router.RequestContext, headOnly bool) {
	fsPath, ok := resolveUnderRoot(ctx.Root, conn.State.Path)
	if !ok {
		h.writeError(conn, 403, nil)
		return
	}

	info, err := os.Stat(fsPath)
	if err != nil {
		h.writeError(conn, 404, nil)
		return
	}

	if info.IsDir() {
		if idx, ok := findIndex(fsPath, ctx.IndexFiles); ok {
			h.serveFile(conn, idx, headOnly)
			return
		}
		if ctx.Autoindex {
			h.serveAutoindex(conn, fsPath, conn.State.Path, headOnly)
			return
		}
		h.writeError(conn, 404, nil)
		return
	}

	h.serveFile(conn, fsPath, headOnly)
}

func (h *Handler) serveFile(conn *engine.Connection, fsPath string, headOnly bool) {
	data, err := os.ReadFile(fsPath)
	if err != nil {
		if os.IsPermission(err) {
			h.writeError(conn, 403, nil)
			return
		}
		h.writeError(conn, 404, nil)
		return
	}
	headers := []httpresp.Header{
		{Name: "Content-Type", Value: mime.TypeFor(fsPath)},
		{Name: "Content-Length", Value: strconv.Itoa(len(data))},
		{Name: "Connection", Value: h.connectionValue(conn)},
	}
	if headOnly {
		conn.QueueOut(httpresp.Build(conn.State.Version, 200, headers, nil))
		return
	}
	conn.QueueOut(httpresp.Build(conn.State.Version, 200, headers, data))
}

// serveAutoindex renders a minimal directory listing, per spec.md §4.5's
// autoindex directive.
func (h *Handler) serveAutoindex(conn *engine.Connection, dir, urlPath string, headOnly bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		h.writeError(conn, 403, nil)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	b.WriteString("<html><head><title>Index of ")
	b.WriteString(urlPath)
	b.WriteString("</title></head><body><h1>Index of ")
	b.WriteString(urlPath)
	b.WriteString("</h1><ul>\n")
	if urlPath != "/" {
		b.WriteString(`<li><a href="../">../</a></li>` + "\n")
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(`<li><a href="`)
		b.WriteString(name)
		b.WriteString(`">`)
		b.WriteString(name)
		b.WriteString("</a></li>\n")
	}
	b.WriteString("</ul></body></html>\n")

	body := []byte(b.String())
	headers := []httpresp.Header{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Content-Length", Value: strconv.Itoa(len(body))},
		{Name: "Connection", Value: h.connectionValue(conn)},
	}
	if headOnly {
		conn.QueueOut(httpresp.Build(conn.State.Version, 200, headers, nil))
		return
	}
	conn.QueueOut(httpresp.Build(conn.State.Version, 200, headers, body))
}

func findIndex(dir string, names []string) (string, bool) {
	for _, name := range names {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// resolveUnderRoot joins urlPath onto root and rejects any result that
// escapes root after cleaning, per spec.md §4.5's path-traversal rule.
func resolveUnderRoot(root, urlPath string) (string, bool) {
	cleaned := path.Clean("/" + urlPath)
	full := filepath.Join(root, cleaned)
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", false
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(filepath.Separator)) {
		return "", false
	}
	return fullAbs, true
}
