// Package cache implements the concurrent, caching forward-proxy core:
// an LRU index of response-body entries (C1), a per-entry
// reader/eviction lifecycle protocol (C2), and a stream-while-you-fill
// fetch pipeline with single-origin-fetch semantics (C3).
package cache

import "io"

// Cache is the opaque handle exposing cache_new/cache_destroy/
// cache_find_and_promote/cache_stream_hit-style operations. It is a thin
// facade over Index that also owns the MaxChunkSize used by
// FetchAndStream, so callers only need one value to thread through the
// request path.
type Cache struct {
	index        *Index
	maxChunkSize int
}

// New creates an empty cache bounded to capacity entries, streaming
// response bodies in chunks of at most maxChunkSize bytes. This is the
// cache_new operation.
func New(capacity, maxChunkSize int) *Cache {
	return &Cache{
		index:        NewIndex(capacity),
		maxChunkSize: maxChunkSize,
	}
}

// Close drains and discards every entry still in the index. This is
// cache_destroy. Entries with active readers are marked and drained
// before the handle is abandoned, same as any other eviction.
func (c *Cache) Close() {
	for {
		e, ok := c.index.PopBack()
		if !ok {
			return
		}
		e.MarkAndDrain()
	}
}

// FindAndPromote is cache_find_and_promote: on a hit, the matching entry
// is atomically moved to the front of the LRU order and returned; on a
// miss, ok is false.
func (c *Cache) FindAndPromote(key string) (entry *Entry, ok bool) {
	return c.index.FindAndPromote(key)
}

// StreamHit is cache_stream_hit: it performs the full reader-admission,
// stream, reader-release sequence against an already-promoted entry. A
// send failure partway through stops the stream and returns
// ErrClientWrite; the reader is still released.
func (c *Cache) StreamHit(entry *Entry, client io.Writer) error {
	if err := entry.AcquireReader(); err != nil {
		return err
	}
	defer entry.ReleaseReader()

	for _, chunk := range entry.Chunks() {
		if err := writeFull(client, chunk.Bytes); err != nil {
			return ErrClientWrite
		}
	}
	return nil
}

// FetchAndStream delegates to the package-level pipeline using this
// cache's index and configured MaxChunkSize. Pass an empty key (or call
// the package function directly with idx == nil) for a non-cacheable
// relay.
func (c *Cache) FetchAndStream(origin io.ReadWriter, client io.Writer, key string, request []byte) error {
	var idx *Index
	if key != "" {
		idx = c.index
	}
	return FetchAndStream(origin, client, idx, key, request, c.maxChunkSize)
}

// Len reports the current number of committed entries, for metrics.
func (c *Cache) Len() int {
	return c.index.Len()
}

// TotalBytes reports the approximate total size of all committed
// entries, for metrics.
func (c *Cache) TotalBytes() int {
	return c.index.TotalBytes()
}

// OnEvict registers a callback invoked once per entry evicted from the
// cache, for metrics.
func (c *Cache) OnEvict(fn func()) {
	c.index.SetEvictionHook(fn)
}
