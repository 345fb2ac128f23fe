// Package config holds the resolved, validated configuration tree consumed
// by the router and handlers: servers, their listen endpoints, and the
// locations nested under them.
package config

import "fmt"

// Endpoint is a listen (address, port) pair. The zero address "0.0.0.0"
// means "any".
type Endpoint struct {
	Address string
	Port    uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}

// Matches reports whether a connection accepted on local endpoint l was
// addressed through this configured endpoint.
func (e Endpoint) Matches(local Endpoint) bool {
	if e.Port != local.Port {
		return false
	}
	return e.Address == local.Address || e.Address == "0.0.0.0"
}

// Return is the optional short-circuit directive on a Location.
type Return struct {
	Status int
	Target string
}

// Location is a path-prefix scope within a Server that overrides directives.
// Any field left at its zero value falls back to the enclosing Server.
type Location struct {
	Path           string
	Root           string
	IndexFiles     []string
	Autoindex      *bool
	AllowedMethods []string
	UploadDir      string
	CGIMap         map[string]string
	Return         *Return
}

// Server is a virtual server: one or more listen endpoints, an ordered set
// of host names, and the directives its locations may override.
type Server struct {
	Listens            []Endpoint
	Names              []string
	Root               string
	IndexFiles         []string
	ClientMaxBodySize  int64
	ErrorPages         map[int]string
	Autoindex          bool
	Locations          []Location
}

// Model is the resolved, immutable configuration tree for the process
// lifetime: the set of virtual servers and the endpoints they bind.
type Model struct {
	Servers []*Server
}

// DefaultAllowedMethods is the implicit method set when a Location does not
// specify allow_methods.
var DefaultAllowedMethods = []string{"GET", "HEAD", "POST", "DELETE"}

// Endpoints returns the deduplicated set of endpoints referenced by any
// server in the model — one Listener per entry, per spec.
func (m *Model) Endpoints() []Endpoint {
	seen := make(map[Endpoint]bool)
	var out []Endpoint
	for _, s := range m.Servers {
		for _, ep := range s.Listens {
			if !seen[ep] {
				seen[ep] = true
				out = append(out, ep)
			}
		}
	}
	return out
}

// ServersFor returns, in declaration order, every server that binds the
// given local endpoint.
func (m *Model) ServersFor(local Endpoint) []*Server {
	var out []*Server
	for _, s := range m.Servers {
		for _, ep := range s.Listens {
			if ep.Matches(local) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// AllowedMethodSet resolves the effective allowed method set for a location,
// falling back to the default full set when unset.
func (l *Location) AllowedMethodSet() []string {
	if len(l.AllowedMethods) == 0 {
		return DefaultAllowedMethods
	}
	return l.AllowedMethods
}
