package cache

import "bytes"

var contentLengthHeader = []byte("Content-Length:")

// parseContentLength is a best-effort Content-Length scanner: a
// case-sensitive search for "Content-Length:" within the given buffer,
// skip non-digit bytes to the first digit, then parse consecutive
// decimal digits. It only ever sees the buffer it is handed —
// if the header is split across chunks, it misses it, and that is
// intentional: the caller falls back to origin EOF. Returns (length,
// true) on success, (0, false) if the header name isn't present or has no
// digits following it.
func parseContentLength(buf []byte) (uint64, bool) {
	idx := bytes.Index(buf, contentLengthHeader)
	if idx == -1 {
		return 0, false
	}
	rest := buf[idx+len(contentLengthHeader):]

	i := 0
	for i < len(rest) && (rest[i] < '0' || rest[i] > '9') {
		i++
	}
	if i >= len(rest) {
		return 0, false
	}

	start := i
	var value uint64
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		value = value*10 + uint64(rest[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	return value, true
}

// headerTerminatorOffset returns the byte offset immediately past the
// first "\r\n\r\n" in buf, or -1 if it isn't present. Used to split a
// chunk's header bytes from its body bytes when the terminator lands in
// the same chunk the Content-Length header was found in.
func headerTerminatorOffset(buf []byte) int {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx == -1 {
		return -1
	}
	return idx + 4
}
