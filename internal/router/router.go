// Package router resolves an inbound request to a virtual server and then
// to the most specific location block inside it, per spec.md §4.4. Grounded
// on the teacher's radix-tree path matcher (server/router/radix.go in the
// retrieval pack): the same flat-children, walk-and-compare shape, adapted
// from exact path-segment routing with route params to nginx-style
// longest-prefix location matching with directive fallback to the server
// block.
package router

import (
	"strings"

	"github.com/nanonginx/nanonginx/internal/config"
)

// Resolve picks the virtual server serving a connection's local endpoint
// and a request's Host header, per spec.md §4.4's server-selection rule:
// an exact server_name match wins; otherwise the first server with no
// server_name entries is the catch-all (the original_source/ default
// behavior supplemented into SPEC_FULL.md §11); absent one, the first
// server declared for that endpoint is the default.
func Resolve(model *config.Model, local config.Endpoint, host string) *config.Server {
	candidates := model.ServersFor(local)
	if len(candidates) == 0 {
		return nil
	}

	host = strings.ToLower(host)
	var fallback *config.Server
	for _, s := range candidates {
		if len(s.Names) == 0 && fallback == nil {
			fallback = s
		}
		for _, name := range s.Names {
			if strings.ToLower(name) == host {
				return s
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	return candidates[0]
}

// ResolveLocation finds the location block whose path is the longest
// prefix of the request path. Ties (equal-length prefixes) are broken by
// declaration order, matching nginx's documented tie-break and the
// teacher's first-match-wins radix walk. Returns nil when the server
// defines no matching location, in which case server-level directives
// apply directly.
func ResolveLocation(server *config.Server, path string) *config.Location {
	if server == nil {
		return nil
	}
	var best *config.Location
	bestLen := -1
	for i := range server.Locations {
		loc := &server.Locations[i]
		if !pathHasPrefix(path, loc.Path) {
			continue
		}
		if len(loc.Path) > bestLen {
			best = loc
			bestLen = len(loc.Path)
		}
	}
	return best
}

// pathHasPrefix reports whether prefix matches path on a segment boundary:
// "/api" matches "/api" and "/api/v1" but not "/apiary".
func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}
