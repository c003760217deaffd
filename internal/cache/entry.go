package cache

import "sync"

// Chunk is a contiguous, immutable slice of a cached raw response, sized
// at most the pipeline's MaxChunkSize. Its position within the owning
// Entry's chunk sequence is implicit in append order.
type Chunk struct {
	Bytes []byte
}

// Entry is one cached response: the URL it was fetched for plus the
// ordered, append-only sequence of chunks that make up the raw response
// bytes (headers and body, verbatim — no header rewriting is performed).
//
// An Entry has two lifecycle phases. During the producing phase it is
// privately owned by the fetch that is building it: AppendChunk requires
// no locking because there is exactly one writer and zero readers. Once
// committed into an Index, it moves into the shared phase, where Chunks
// may be read concurrently by any number of readers holding an
// AcquireReader admission, and mutation is limited to eviction bookkeeping
// (MarkAndDrain) guarded by mu.
type Entry struct {
	Key    string
	chunks []Chunk

	mu                 sync.Mutex
	cond               *sync.Cond
	readers            int
	markedForDeletion  bool
}

// NewEntry allocates a detached entry for the given key, owned by the
// caller until it is either committed into an Index or destroyed.
func NewEntry(key string) *Entry {
	e := &Entry{Key: key}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// AppendChunk appends a chunk to the entry's sequence. Must only be
// called by the single producer during the fetch phase, before the
// entry is committed — no lock is taken, since only one goroutine ever
// writes to an entry before it is committed.
func (e *Entry) AppendChunk(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	e.chunks = append(e.chunks, Chunk{Bytes: cp})
}

// Chunks returns the entry's chunk sequence in arrival order. Safe to call
// concurrently with other readers, but only while the caller holds a
// reader admission from AcquireReader; never safe during the producing
// phase.
func (e *Entry) Chunks() []Chunk {
	return e.chunks
}

// AcquireReader admits a new reader unless the entry has already been
// marked for deletion. Returns ErrEvicted when admission is refused.
func (e *Entry) AcquireReader() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.markedForDeletion {
		return ErrEvicted
	}
	e.readers++
	return nil
}

// ReleaseReader records that a previously admitted reader has finished
// streaming, waking any goroutine blocked in MarkAndDrain.
func (e *Entry) ReleaseReader() {
	e.mu.Lock()
	e.readers--
	e.cond.Broadcast()
	e.mu.Unlock()
}

// MarkAndDrain flips the entry to marked-for-deletion — refusing all
// future AcquireReader calls — and blocks until every reader admitted
// before the mark has called ReleaseReader. Callers must not hold any
// Index lock while calling this: it is the eviction boundary where the
// index lock is deliberately released (see Index.EvictLRU).
func (e *Entry) MarkAndDrain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markedForDeletion = true
	for e.readers > 0 {
		e.cond.Wait()
	}
}

// IsMarkedForDeletion reports the entry's one-way deletion flag. Exposed
// for tests; production code should rely on AcquireReader's return value
// instead of racing against this snapshot.
func (e *Entry) IsMarkedForDeletion() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markedForDeletion
}

// Size returns the total number of raw response bytes (headers and body)
// across all appended chunks.
func (e *Entry) Size() int {
	n := 0
	for _, c := range e.chunks {
		n += len(c.Bytes)
	}
	return n
}
