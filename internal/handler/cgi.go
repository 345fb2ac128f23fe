package handler

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/httpresp"
	"github.com/nanonginx/nanonginx/internal/router"
)

// cgiTimeout is the wall-clock bound on a CGI subprocess, per spec.md
// §4.5: a script that runs past this is killed and answered with 504.
const cgiTimeout = 10 * time.Second

// serveCGI implements the CGI subprocess contract of spec.md §4.5:
// interp is invoked with the resolved script path as its sole argument,
// CGI environment variables describe the request, the request body is
// piped to stdin, and the subprocess's stdout — headers, a blank line,
// then body — is parsed back into the HTTP response.
func (h *Handler) serveCGI(conn *engine.Connection, ctx *router.RequestContext, interp string) {
	scriptPath, ok := resolveUnderRoot(ctx.Root, conn.State.Path)
	if !ok {
		h.writeError(conn, 403, nil)
		return
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), cgiTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, interp, scriptPath)
	cmd.Env = cgiEnviron(conn, ctx, scriptPath)
	cmd.Stdin = bytes.NewReader(conn.State.Body)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	if timeoutCtx.Err() == context.DeadlineExceeded {
		h.writeError(conn, 504, nil)
		return
	}
	if err != nil {
		h.writeError(conn, 500, nil)
		return
	}

	status, headers, body := parseCGIOutput(stdout.Bytes())
	headers = append(headers, httpresp.Header{Name: "Content-Length", Value: strconv.Itoa(len(body))})
	headers = append(headers, httpresp.Header{Name: "Connection", Value: h.connectionValue(conn)})
	conn.QueueOut(httpresp.Build(conn.State.Version, status, headers, body))
}

// parseCGIOutput splits a CGI script's stdout into its header block and
// body per spec.md §4.5: "Output is treated as the full CGI response
// (headers + blank line + body)." A Status header, if present, sets the
// response status; Content-Type is carried through verbatim; everything
// else is forwarded as-is. Output with no header/body separator is
// treated as a bare 200 body, for scripts that skip headers entirely.
func parseCGIOutput(raw []byte) (int, []httpresp.Header, []byte) {
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(raw, sep)
	sepLen := 4
	if idx < 0 {
		sep = []byte("\n\n")
		idx = bytes.Index(raw, sep)
		sepLen = 2
	}
	if idx < 0 {
		return 200, nil, raw
	}

	headerBlock := raw[:idx]
	body := raw[idx+sepLen:]

	status := 200
	var headers []httpresp.Header
	for _, line := range strings.Split(strings.ReplaceAll(string(headerBlock), "\r\n", "\n"), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if strings.EqualFold(name, "Status") {
			if code, err := strconv.Atoi(strings.Fields(value)[0]); err == nil {
				status = code
			}
			continue
		}
		headers = append(headers, httpresp.Header{Name: name, Value: value})
	}
	return status, headers, body
}

// cgiEnviron builds the CGI/1.1 variable set the subprocess relies on to
// read the request, per spec.md §4.5.
func cgiEnviron(conn *engine.Connection, ctx *router.RequestContext, scriptPath string) []string {
	env := []string{
		"REQUEST_METHOD=" + conn.State.Method,
		"SCRIPT_FILENAME=" + scriptPath,
		"SCRIPT_NAME=" + conn.State.Path,
		"PATH_INFO=" + conn.State.Path,
		"QUERY_STRING=" + conn.State.Query,
		"SERVER_PROTOCOL=" + conn.State.Version,
		"SERVER_NAME=" + conn.LocalEndpoint.Address,
		"SERVER_PORT=" + strconv.Itoa(int(conn.LocalEndpoint.Port)),
		"DOCUMENT_ROOT=" + ctx.Root,
		"GATEWAY_INTERFACE=CGI/1.1",
		"REDIRECT_STATUS=200",
		"REMOTE_ADDR=" + conn.RemoteAddr.String(),
		"CONTENT_LENGTH=" + strconv.Itoa(len(conn.State.Body)),
	}
	if ct, ok := conn.State.Get("content-type"); ok {
		env = append(env, "CONTENT_TYPE="+ct)
	}
	for _, header := range conn.State.Headers {
		env = append(env, "HTTP_"+headerEnvName(header.Name)+"="+header.Value)
	}
	return env
}

// headerEnvName converts a header name like "accept-encoding" into the
// CGI HTTP_ACCEPT_ENCODING form.
func headerEnvName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
