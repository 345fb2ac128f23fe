package httpparse

import (
	"bytes"
	"strconv"
	"strings"
)

// Parser is stateless; all mutable state lives in the State the caller
// threads through Step. Grounded on the teacher's stateless HTTPParser,
// generalized from a single-shot "parse the whole request or fail" pass
// into a true incremental state machine that suspends between arbitrary
// byte boundaries.
type Parser struct{}

var recognizedMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "DELETE": true,
	"PUT": true, "OPTIONS": true,
}

// Step attempts to make one unit of progress against buf, the unconsumed
// remainder of the connection's inbound buffer. It returns how many bytes
// of buf were consumed, an Event the caller should act on, and a
// ParseError when the request must be rejected. A zero consumed count
// with a nil error means "wait for more bytes" — no assumption is made
// about how many bytes arrive per call.
func (p *Parser) Step(buf []byte, st *State, limits Limits) (int, Event, *ParseError) {
	switch st.Phase {
	case PhaseRequestLine:
		return p.stepRequestLine(buf, st, limits)
	case PhaseHeaders:
		return p.stepHeaders(buf, st, limits)
	case PhaseBodyLength:
		return p.stepBodyLength(buf, st)
	case PhaseChunkSize:
		return p.stepChunkSize(buf, st)
	case PhaseChunkData:
		return p.stepChunkData(buf, st)
	case PhaseChunkTrailerCRLF:
		return p.stepChunkTrailerCRLF(buf, st)
	case PhaseTrailers:
		return p.stepTrailers(buf, st)
	default:
		return 0, EventNone, nil
	}
}

// DecideBody finalizes the body-framing decision once the caller has
// resolved the virtual server (and therefore its effective
// client_max_body_size) from the Host header, per spec.md §4.3/§4.4.
func (p *Parser) DecideBody(st *State, maxBodySize int64) *ParseError {
	st.maxBodySize = maxBodySize
	if st.Chunked {
		st.Phase = PhaseChunkSize
		return nil
	}
	if st.ContentLength > 0 {
		if st.ContentLength > maxBodySize {
			return &ParseError{Status: 413, Close: true, Message: "payload too large"}
		}
		st.bodyRemaining = st.ContentLength
		st.Body = make([]byte, 0, st.ContentLength)
		st.Phase = PhaseBodyLength
		return nil
	}
	st.Phase = PhaseDispatching
	return nil
}

func (p *Parser) stepRequestLine(buf []byte, st *State, limits Limits) (int, Event, *ParseError) {
	idx := indexCRLF(buf)
	if idx == -1 {
		if len(buf) > limits.MaxStartLine {
			return 0, EventNone, newErr(414, "request-uri too large")
		}
		return 0, EventNone, nil
	}
	if idx > limits.MaxStartLine {
		return 0, EventNone, newErr(414, "request-uri too large")
	}
	line := buf[:idx]
	consumed := idx + 2

	method, target, version, ok := splitRequestLine(line)
	if !ok {
		return 0, EventNone, newErr(400, "malformed request line")
	}
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return 0, EventNone, newErr(400, "unsupported HTTP version")
	}
	if !recognizedMethods[method] {
		return 0, EventNone, newErr(501, "unrecognized method")
	}

	rawPath, rawQuery := splitTarget(target)
	path, err := percentDecode(rawPath)
	if err != nil {
		return 0, EventNone, newErr(400, "malformed percent-encoding in path")
	}
	query, err := percentDecode(rawQuery)
	if err != nil {
		return 0, EventNone, newErr(400, "malformed percent-encoding in query")
	}

	st.Method = method
	st.RawTarget = target
	st.Path = path
	st.Query = query
	st.Version = version
	st.HeaderMap = map[string]string{}
	st.Phase = PhaseHeaders
	return consumed, EventNone, nil
}

func (p *Parser) stepHeaders(buf []byte, st *State, limits Limits) (int, Event, *ParseError) {
	pos := 0
	for {
		idx := indexCRLF(buf[pos:])
		if idx == -1 {
			if len(buf)-pos > limits.MaxHeadersSize {
				return pos, EventNone, newErr(431, "headers too large")
			}
			return pos, EventNone, nil
		}
		if idx == 0 {
			pos += 2
			if st.Version == "HTTP/1.1" && !st.HasHost {
				return pos, EventNone, newErr(400, "missing Host header")
			}
			if err := finalizeBodyFraming(st); err != nil {
				return pos, EventNone, err
			}
			st.Phase = PhaseAwaitingBodyDecision
			return pos, EventNeedHostResolution, nil
		}

		line := buf[pos : pos+idx]
		st.HeadersSize += idx + 2
		if st.HeadersSize > limits.MaxHeadersSize {
			return pos, EventNone, newErr(431, "headers too large")
		}

		name, value, ok := splitHeaderLine(line)
		if !ok {
			return pos, EventNone, newErr(400, "malformed header line")
		}
		if !isPrintableASCII(name) || !isPrintableASCII(value) {
			return pos, EventNone, newErr(400, "non-printable header")
		}

		st.HeaderCount++
		if st.HeaderCount > limits.MaxHeadersCount {
			return pos, EventNone, newErr(431, "too many headers")
		}

		lname := strings.ToLower(name)
		st.Headers = append(st.Headers, Header{Name: lname, Value: value})
		st.HeaderMap[lname] = value // duplicate headers: last value wins
		if lname == "host" {
			st.HasHost = true
			st.HostValue = value
		}

		pos += idx + 2
	}
}

func finalizeBodyFraming(st *State) *ParseError {
	if te, ok := st.HeaderMap["transfer-encoding"]; ok && strings.Contains(strings.ToLower(te), "chunked") {
		st.Chunked = true
		return nil
	}
	if cl, ok := st.HeaderMap["content-length"]; ok {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return newErr(400, "invalid content-length")
		}
		st.ContentLength = n
	}
	return nil
}

func (p *Parser) stepBodyLength(buf []byte, st *State) (int, Event, *ParseError) {
	n := int64(len(buf))
	if n > st.bodyRemaining {
		n = st.bodyRemaining
	}
	st.Body = append(st.Body, buf[:n]...)
	st.bodyRemaining -= n
	if st.bodyRemaining == 0 {
		st.Phase = PhaseDispatching
		return int(n), EventRequestComplete, nil
	}
	return int(n), EventNone, nil
}

const maxChunkSizeLineLen = 64

func (p *Parser) stepChunkSize(buf []byte, st *State) (int, Event, *ParseError) {
	idx := indexCRLF(buf)
	if idx == -1 {
		if len(buf) > maxChunkSizeLineLen {
			return 0, EventNone, newErr(400, "chunk size line too long")
		}
		return 0, EventNone, nil
	}
	line := buf[:idx]
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	size, err := parseHex(line)
	if err != nil {
		return 0, EventNone, newErr(400, "invalid chunk size")
	}
	consumed := idx + 2
	if int64(len(st.Body))+size > st.maxBodySize {
		return consumed, EventNone, newErr(413, "payload too large")
	}
	if size == 0 {
		st.Phase = PhaseTrailers
		return consumed, EventNone, nil
	}
	st.chunkRemaining = size
	st.Phase = PhaseChunkData
	return consumed, EventNone, nil
}

func (p *Parser) stepChunkData(buf []byte, st *State) (int, Event, *ParseError) {
	n := int64(len(buf))
	if n > st.chunkRemaining {
		n = st.chunkRemaining
	}
	st.Body = append(st.Body, buf[:n]...)
	st.chunkRemaining -= n
	if st.chunkRemaining == 0 {
		st.Phase = PhaseChunkTrailerCRLF
	}
	return int(n), EventNone, nil
}

func (p *Parser) stepChunkTrailerCRLF(buf []byte, st *State) (int, Event, *ParseError) {
	if len(buf) < 2 {
		return 0, EventNone, nil
	}
	if buf[0] != '\r' || buf[1] != '\n' {
		return 0, EventNone, newErr(400, "malformed chunk trailer")
	}
	st.Phase = PhaseChunkSize
	return 2, EventNone, nil
}

func (p *Parser) stepTrailers(buf []byte, st *State) (int, Event, *ParseError) {
	idx := indexCRLF(buf)
	if idx == -1 {
		return 0, EventNone, nil
	}
	if idx == 0 {
		st.Phase = PhaseDispatching
		return 2, EventRequestComplete, nil
	}
	return idx + 2, EventNone, nil
}

// indexCRLF finds the first exact "\r\n" in buf, or -1. A lone '\n' is not
// a line terminator here: spec.md §4.3 requires the literal pair.
func indexCRLF(buf []byte) int {
	return bytes.Index(buf, []byte("\r\n"))
}

func splitRequestLine(line []byte) (method, target, version string, ok bool) {
	s1 := bytes.IndexByte(line, ' ')
	if s1 <= 0 {
		return "", "", "", false
	}
	rest := line[s1+1:]
	s2 := bytes.IndexByte(rest, ' ')
	if s2 <= 0 {
		return "", "", "", false
	}
	m := string(line[:s1])
	t := string(rest[:s2])
	v := string(rest[s2+1:])
	if m == "" || t == "" || v == "" {
		return "", "", "", false
	}
	return m, t, v, true
}

func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(string(line[:i]))
	value = strings.TrimSpace(string(line[i+1:]))
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

func parseHex(line []byte) (int64, error) {
	if len(line) == 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(string(line), 16, 63)
}

func percentDecode(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", strconv.ErrSyntax
		}
		hi, ok1 := hexVal(s[i+1])
		lo, ok2 := hexVal(s[i+2])
		if !ok1 || !ok2 {
			return "", strconv.ErrSyntax
		}
		b.WriteByte(byte(hi<<4 | lo))
		i += 2
	}
	return b.String(), nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// Get looks up a header by case-insensitive name.
func (s *State) Get(name string) (string, bool) {
	v, ok := s.HeaderMap[strings.ToLower(name)]
	return v, ok
}
