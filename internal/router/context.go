package router

import "github.com/nanonginx/nanonginx/internal/config"

// RequestContext is the resolved, flattened directive set a handler needs
// to serve one request: the location's directives where present, falling
// back to the owning server's, per spec.md §4.4's fallback-resolution
// rule. Grounded on the teacher's router.Context (server/router/context.go
// in the retrieval pack), replacing its Session-backed getters/setters
// with a plain resolved-directive struct, since this router has no
// per-request routing params to carry.
type RequestContext struct {
	Server   *config.Server
	Location *config.Location

	Root           string
	IndexFiles     []string
	Autoindex      bool
	AllowedMethods []string
	UploadDir      string
	CGIMap         map[string]string
	Return         *config.Return
}

// BuildContext flattens a server and its (possibly nil) matched location
// into the directive set a handler consults, applying location-over-server
// fallback per directive.
func BuildContext(server *config.Server, loc *config.Location) *RequestContext {
	ctx := &RequestContext{
		Server:         server,
		Location:       loc,
		Root:           server.Root,
		IndexFiles:     server.IndexFiles,
		Autoindex:      server.Autoindex,
		AllowedMethods: config.DefaultAllowedMethods,
	}
	if loc == nil {
		return ctx
	}

	if loc.Root != "" {
		ctx.Root = loc.Root
	}
	if len(loc.IndexFiles) > 0 {
		ctx.IndexFiles = loc.IndexFiles
	}
	if loc.Autoindex != nil {
		ctx.Autoindex = *loc.Autoindex
	}
	if len(loc.AllowedMethods) > 0 {
		ctx.AllowedMethods = loc.AllowedMethodSet()
	}
	ctx.UploadDir = loc.UploadDir
	ctx.CGIMap = loc.CGIMap
	ctx.Return = loc.Return
	return ctx
}

// AllowsMethod reports whether the resolved context permits method.
func (c *RequestContext) AllowsMethod(method string) bool {
	for _, m := range c.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// ErrorPageFor returns the configured error_page target for a status code,
// if the owning server declared one, per spec.md §4.6.
func (c *RequestContext) ErrorPageFor(status int) (string, bool) {
	if c.Server == nil || c.Server.ErrorPages == nil {
		return "", false
	}
	target, ok := c.Server.ErrorPages[status]
	return target, ok
}
