package cache

import (
	"io"
	"math"
)

// maxCommitAttempts bounds the evict-then-push retry loop in commit: a
// concurrent inserter can race us between EvictLRU and the retried
// PushFront, but only finitely many times before we simply give up and
// let the miss go unmemoized.
const maxCommitAttempts = 8

// unknownLength is the sentinel value for an as-yet-undetermined
// expected response length.
const unknownLength = math.MaxUint64

// FetchAndStream is the fetch pipeline, C3. It forwards request to
// origin byte-for-byte, then reads the response in chunks of at most
// maxChunkSize, forwarding each chunk to client as it arrives and, when
// idx is non-nil, simultaneously appending it to a detached cache entry
// keyed by key. Response completion is detected via a best-effort
// Content-Length parse (parseContentLength) or, failing that, origin EOF.
//
// On success, and only when idx is non-nil, the completed entry is
// committed into idx (evicting the LRU victim first if the index is
// full); a commit that cannot find room after maxCommitAttempts retries
// is silently dropped — the stream to the client already succeeded, the
// cache simply does not memoize it.
//
// Failure of any I/O step aborts the fetch, discards the detached entry,
// and returns the specific error kind (ErrUpstreamWrite, ErrUpstreamRead,
// ErrClientWrite, ErrOutOfMemory). No partial entry is ever committed; the
// index is left consistent either way.
func FetchAndStream(origin io.ReadWriter, client io.Writer, idx *Index, key string, request []byte, maxChunkSize int) error {
	if err := writeFull(origin, request); err != nil {
		return ErrUpstreamWrite
	}

	cacheable := idx != nil && key != ""
	var entry *Entry
	if cacheable {
		entry = NewEntry(key)
	}

	buf, err := allocBuffer(maxChunkSize)
	if err != nil {
		return err
	}

	var total, expected uint64 = 0, unknownLength

	for {
		n, rerr := origin.Read(buf)

		if n == 0 {
			if rerr == nil {
				continue
			}
			if rerr == io.EOF {
				break
			}
			return ErrUpstreamRead
		}

		chunk := buf[:n]
		if err := writeFull(client, chunk); err != nil {
			return ErrClientWrite
		}
		if cacheable {
			entry.AppendChunk(chunk)
		}

		total += uint64(n)
		if expected == unknownLength {
			if length, found := parseContentLength(chunk); found {
				if h := headerTerminatorOffset(chunk); h != -1 {
					bodyAlreadyInChunk := uint64(n - h)
					expected = length + (total - bodyAlreadyInChunk)
				}
			}
		}

		if expected != unknownLength && total >= expected {
			break
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return ErrUpstreamRead
		}
	}

	if !cacheable {
		return nil
	}

	// A response that advertised a Content-Length and was cut short by
	// origin EOF before delivering it is a truncated relay, not a
	// complete cacheable response: the client still got everything the
	// origin sent, but the entry must not be memoized. When expected was
	// never determined, EOF is the normal, expected way a
	// Content-Length-less response ends.
	complete := expected == unknownLength || total >= expected
	if complete {
		commit(idx, entry)
	}
	return nil
}

// commit attempts to push entry into idx as the new MRU, evicting the
// current LRU victim first if the index is full. It gives up silently
// after maxCommitAttempts races with concurrent inserters.
func commit(idx *Index, entry *Entry) {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		switch err := idx.PushFront(entry); err {
		case nil:
			return
		case errFull:
			idx.EvictLRU()
		default:
			return
		}
	}
	// Giving up: entry is simply never reachable from idx and becomes
	// garbage, reclaimed the ordinary way.
}

// writeFull writes all of b to w, looping over partial writes.
func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// allocBuffer allocates the fixed-size transfer buffer, converting an
// allocation panic into an error instead of crashing the worker
// goroutine.
func allocBuffer(n int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, ErrOutOfMemory
		}
	}()
	return make([]byte, n), nil
}
