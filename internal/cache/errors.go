package cache

import "errors"

// Error kinds raised by the cache core. I/O and allocation failures abort
// the in-flight fetch and propagate to the caller; errFull is recovered
// locally by FetchAndStream and never reaches the caller.
var (
	// ErrUpstreamWrite means forwarding the client's request to the origin failed.
	ErrUpstreamWrite = errors.New("cache: upstream write failed")
	// ErrUpstreamRead means receiving from the origin failed, including a read timeout.
	ErrUpstreamRead = errors.New("cache: upstream read failed")
	// ErrClientWrite means forwarding a chunk to the client failed.
	ErrClientWrite = errors.New("cache: client write failed")
	// ErrOutOfMemory means allocating an entry, chunk or transfer buffer failed.
	ErrOutOfMemory = errors.New("cache: allocation failed")
	// ErrEvicted means a matching entry exists but is marked for deletion.
	ErrEvicted = errors.New("cache: entry evicted")
	// errFull is internal: the index had no space left for a commit.
	errFull = errors.New("cache: index full")
)
