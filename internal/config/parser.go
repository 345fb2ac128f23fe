package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Load reads a configuration file path and produces a validated Model. It
// is the lexer/parser contract named in spec.md §1 — a thin collaborator,
// deliberately hand-rolled rather than imported, since the grammar is
// bespoke and small.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	p := &parser{toks: lex(string(data))}
	m, err := p.parseTop()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := validate(m); err != nil {
		return nil, errors.Wrapf(err, "validating config %s", path)
	}
	return m, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.advance()
	if t.kind != kind {
		return t, errors.Errorf("line %d: unexpected token %q", t.line, t.text)
	}
	return t, nil
}

// parseTop reads one or more top-level `http { ... }` blocks containing
// `server` blocks, per spec.md §6; servers from every block are collected.
func (p *parser) parseTop() (*Model, error) {
	m := &Model{}
	for p.peek().kind != tokEOF {
		word, err := p.expect(tokWord)
		if err != nil {
			return nil, err
		}
		if word.text != "http" {
			return nil, errors.Errorf("line %d: expected \"http\" block, got %q", word.line, word.text)
		}
		if _, err := p.expect(tokLBrace); err != nil {
			return nil, err
		}
		for p.peek().kind != tokRBrace {
			sw, err := p.expect(tokWord)
			if err != nil {
				return nil, err
			}
			if sw.text != "server" {
				return nil, errors.Errorf("line %d: expected \"server\" block, got %q", sw.line, sw.text)
			}
			srv, err := p.parseServer()
			if err != nil {
				return nil, err
			}
			m.Servers = append(m.Servers, srv)
		}
		if _, err := p.expect(tokRBrace); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (p *parser) parseServer() (*Server, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	s := &Server{
		ErrorPages: map[int]string{},
	}
	for p.peek().kind != tokRBrace {
		dw, err := p.expect(tokWord)
		if err != nil {
			return nil, err
		}
		switch dw.text {
		case "location":
			loc, err := p.parseLocation()
			if err != nil {
				return nil, err
			}
			s.Locations = append(s.Locations, *loc)
			continue
		}

		args, err := p.collectArgs()
		if err != nil {
			return nil, err
		}
		if err := applyServerDirective(s, dw.text, args, dw.line); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	if s.Root == "" {
		s.Root = "/"
	}
	if !strings.HasSuffix(s.Root, "/") {
		s.Root += "/"
	}
	return s, nil
}

func (p *parser) parseLocation() (*Location, error) {
	pathTok, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	loc := &Location{Path: pathTok.text, CGIMap: map[string]string{}}
	for p.peek().kind != tokRBrace {
		dw, err := p.expect(tokWord)
		if err != nil {
			return nil, err
		}
		args, err := p.collectArgs()
		if err != nil {
			return nil, err
		}
		if err := applyLocationDirective(loc, dw.text, args, dw.line); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return loc, nil
}

// collectArgs consumes words until the terminating `;`.
func (p *parser) collectArgs() ([]string, error) {
	var args []string
	for p.peek().kind == tokWord {
		args = append(args, p.advance().text)
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return nil, err
	}
	return args, nil
}

func applyServerDirective(s *Server, name string, args []string, line int) error {
	switch name {
	case "listen":
		ep, err := parseListen(args)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		s.Listens = append(s.Listens, ep)
	case "server_name":
		s.Names = append(s.Names, args...)
	case "root":
		if len(args) != 1 {
			return errors.Errorf("line %d: root takes exactly one argument", line)
		}
		s.Root = args[0]
	case "index":
		s.IndexFiles = args
	case "client_max_body_size":
		if len(args) != 1 {
			return errors.Errorf("line %d: client_max_body_size takes exactly one argument", line)
		}
		n, err := ParseSize(args[0])
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		s.ClientMaxBodySize = n
	case "autoindex":
		s.Autoindex = args != nil && args[0] == "on"
	case "error_page":
		if len(args) < 2 {
			return errors.Errorf("line %d: error_page needs at least one code and a path", line)
		}
		target := args[len(args)-1]
		for _, c := range args[:len(args)-1] {
			code, err := strconv.Atoi(c)
			if err != nil || code < 300 || code > 599 {
				return errors.Errorf("line %d: invalid error_page status %q", line, c)
			}
			s.ErrorPages[code] = target
		}
	default:
		return errors.Errorf("line %d: unknown server directive %q", line, name)
	}
	return nil
}

func applyLocationDirective(l *Location, name string, args []string, line int) error {
	switch name {
	case "root":
		if len(args) != 1 {
			return errors.Errorf("line %d: root takes exactly one argument", line)
		}
		l.Root = args[0]
	case "index":
		l.IndexFiles = args
	case "autoindex":
		v := args != nil && args[0] == "on"
		l.Autoindex = &v
	case "allow_methods", "allowed_methods":
		l.AllowedMethods = append(l.AllowedMethods, args...)
	case "upload_dir":
		if len(args) != 1 {
			return errors.Errorf("line %d: upload_dir takes exactly one argument", line)
		}
		l.UploadDir = args[0]
	case "cgi_pass":
		if len(args) != 2 {
			return errors.Errorf("line %d: cgi_pass takes an extension and an interpreter path", line)
		}
		l.CGIMap[args[0]] = args[1]
	case "return":
		if len(args) < 1 {
			return errors.Errorf("line %d: return needs a status code", line)
		}
		code, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "line %d: invalid return status", line)
		}
		ret := &Return{Status: code}
		if len(args) > 1 {
			ret.Target = args[1]
		}
		l.Return = ret
	default:
		return errors.Errorf("line %d: unknown location directive %q", line, name)
	}
	return nil
}

// parseListen accepts "listen <port> [<address>];" and the nginx-flavored
// "listen <address>:<port>;" form.
func parseListen(args []string) (Endpoint, error) {
	if len(args) == 0 || len(args) > 2 {
		return Endpoint{}, errors.New("listen takes a port and an optional address")
	}
	first := args[0]
	if strings.Contains(first, ":") {
		parts := strings.SplitN(first, ":", 2)
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return Endpoint{}, errors.Wrapf(err, "invalid listen port %q", parts[1])
		}
		return Endpoint{Address: parts[0], Port: uint16(port)}, nil
	}
	port, err := strconv.Atoi(first)
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "invalid listen port %q", first)
	}
	addr := "0.0.0.0"
	if len(args) == 2 {
		addr = args[1]
	}
	return Endpoint{Address: addr, Port: uint16(port)}, nil
}

// validate enforces the invariants of spec.md §3: every server has a
// non-empty root and at least one listen endpoint, error_page keys are
// valid status codes (already checked while parsing), and
// client_max_body_size is finite (it always is here — no "unlimited" form
// is accepted by ParseSize).
func validate(m *Model) error {
	if len(m.Servers) == 0 {
		return errors.New("no server blocks defined")
	}
	for i, s := range m.Servers {
		if len(s.Listens) == 0 {
			return errors.Errorf("server %d: no listen directive", i)
		}
		if s.Root == "" {
			return errors.Errorf("server %d: empty root", i)
		}
	}
	return nil
}
