package server

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrHeaderTooLarge is returned when a request's header block exceeds
// the configured MaxHeaderBytes before the blank-line terminator is
// found — a defense the upstream relay does not itself need (origin
// reads are already size-bounded by maxChunkSize) but which a raw-socket
// request parser reading from an untrusted client does.
var ErrHeaderTooLarge = errors.New("server: request header exceeds limit")

// readRequestHead reads a request line and header lines from r up to
// and including the terminating blank line, the way
// EddisonSo-cloud/edd-gateway's handleHTTP reads one header line at a
// time with bufio.Reader.ReadString('\n') rather than invoking a full
// HTTP parser. Returns the request line, the header lines (without
// trailing CRLF, blank line excluded), and the exact raw bytes read —
// the raw bytes are what gets forwarded to the origin verbatim.
func readRequestHead(r *bufio.Reader, maxHeaderBytes int) (requestLine string, headers []string, raw []byte, err error) {
	var buf strings.Builder

	line, err := r.ReadString('\n')
	if err != nil {
		return "", nil, nil, err
	}
	buf.WriteString(line)
	requestLine = strings.TrimRight(line, "\r\n")

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			return "", nil, nil, err
		}
		buf.WriteString(line)
		if buf.Len() > maxHeaderBytes {
			return "", nil, nil, ErrHeaderTooLarge
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		headers = append(headers, trimmed)
	}

	return requestLine, headers, []byte(buf.String()), nil
}

// parseRequestLine splits a request line of the form "METHOD URL
// VERSION" on whitespace: exactly three fields expected.
func parseRequestLine(line string) (method, rawURL, version string, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", "", fmt.Errorf("server: malformed request line %q", line)
	}
	return fields[0], fields[1], fields[2], nil
}

// supportedMethods is a fixed allowlist; anything else gets 501 Not
// Implemented before the cache or an origin connection is ever touched.
// CONNECT is deliberately absent — tunneling an opaque byte stream after
// the initial handshake is a different relay shape than forwarding a
// parsed request, and isn't handled here.
var supportedMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"OPTIONS": true,
	"PATCH":   true,
}

func isMethodSupported(method string) bool {
	return supportedMethods[method]
}

// isCacheable reports whether a request of this method is eligible for
// the cache core at all — only GET responses are memoized, since they
// are the only idempotent, side-effect-free fetches.
func isCacheable(method string) bool {
	return method == "GET"
}

var supportedVersions = map[string]bool{
	"HTTP/0.9": true,
	"HTTP/1.0": true,
	"HTTP/1.1": true,
}

func isVersionSupported(version string) bool {
	return supportedVersions[version]
}

// splitURL extracts host, path and port from a request-line URL via
// direct character scanning rather than net/url.Parse: this proxy only
// needs scheme-stripping and a host/path/port split, not general URL
// normalization.
func splitURL(rawURL string) (host, path, port string) {
	u := rawURL

	if idx := strings.Index(u, "://"); idx != -1 {
		u = u[idx+3:]
	}

	path = "/"
	if idx := strings.IndexByte(u, '/'); idx != -1 {
		path = u[idx:]
		u = u[:idx]
	}

	host = u
	port = "80"
	if idx := strings.IndexByte(u, ':'); idx != -1 {
		host = u[:idx]
		if p := u[idx+1:]; p != "" {
			port = p
		}
	}

	return host, path, port
}

// headerValue returns the value of the named header (case-insensitive),
// or "" if absent. Headers is the raw "Key: Value" line slice produced
// by readRequestHead.
func headerValue(headers []string, name string) string {
	prefix := strings.ToLower(name) + ":"
	for _, h := range headers {
		if strings.HasPrefix(strings.ToLower(h), prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
	}
	return ""
}
