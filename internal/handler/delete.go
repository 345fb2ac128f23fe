package handler

import (
	"os"

	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/router"
)

// serveDelete implements DELETE per spec.md §4.5: a file is removed and
// answered with 204; a non-empty directory is refused with 409; a missing
// target is 404.
func (h *Handler) serveDelete(conn *engine.Connection, ctx *router.RequestContext) {
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
		entries, err := os.ReadDir(fsPath)
		if err != nil {
			h.writeError(conn, 500, nil)
			return
		}
		if len(entries) > 0 {
			h.writeError(conn, 409, nil)
			return
		}
	}

	if err := os.Remove(fsPath); err != nil {
		if os.IsPermission(err) {
			h.writeError(conn, 403, nil)
			return
		}
		h.writeError(conn, 500, nil)
		return
	}

	conn.QueueOut(buildNoContent(conn.State.Version, h.connectionValue(conn)))
}
