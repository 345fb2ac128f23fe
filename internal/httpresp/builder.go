// Package httpresp serializes HttpResponse values into wire bytes, per
// spec.md §4.6: status line, headers in deterministic order, a blank line,
// then the body. Fixed-length responses only — no chunked encoding on the
// way out. Grounded on the teacher's protocol.BuildResp zero-alloc
// status-table approach, generalized from a fixed [505][]byte array (which
// can't hold 408/411/431/504 and friends) to a map covering every status
// this system emits.
package httpresp

import "strconv"

// Header is a single response header in the order it should be written.
type Header struct {
	Name  string
	Value string
}

var reasons = map[int]string{
	100: "Continue",
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	411: "Length Required",
	413: "Payload Too Large",
	414: "Request-URI Too Large",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// Reason returns the canonical reason phrase for a status code, or
// "Unknown Status" when this system never names one explicitly.
func Reason(code int) string {
	if r, ok := reasons[code]; ok {
		return r
	}
	return "Unknown Status"
}

// Build serializes a full response. headers is written verbatim and in
// order — callers are responsible for including Connection and
// Content-Length, per spec.md §4.6.
func Build(version string, status int, headers []Header, body []byte) []byte {
	out := make([]byte, 0, 256+len(body))
	out = append(out, version...)
	out = append(out, ' ')
	out = append(out, strconv.Itoa(status)...)
	out = append(out, ' ')
	out = append(out, Reason(status)...)
	out = append(out, "\r\n"...)
	for _, h := range headers {
		out = append(out, h.Name...)
		out = append(out, ": "...)
		out = append(out, h.Value...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "\r\n"...)
	out = append(out, body...)
	return out
}

// BuildSimple builds a minimal text/html error or status response with a
// deterministic generic body, used when no configured error page applies.
func BuildSimple(version string, status int, close bool) []byte {
	body := []byte("<html><body><h1>" + strconv.Itoa(status) + " " + Reason(status) + "</h1></body></html>\n")
	conn := "keep-alive"
	if close {
		conn = "close"
	}
	headers := []Header{
		{"Content-Type", "text/html"},
		{"Content-Length", strconv.Itoa(len(body))},
		{"Connection", conn},
	}
	return Build(version, status, headers, body)
}
