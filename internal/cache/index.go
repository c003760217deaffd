package cache

import (
	"container/list"
	"sync"
)

// Index is the LRU-ordered collection of committed entries (C1). The
// front of order is most-recently-used, the back is the eviction
// candidate. Lookup is backed by a map for O(1) find — a hardening over
// a linear scan, since there's no reason to pay O(n) lookups when the
// bookkeeping cost is a single extra map — but the only way to change
// an entry's position is still detach-then-push-front, so every
// mutation of order happens under a single lock.
type Index struct {
	mu        sync.Mutex
	order     *list.List // list.Element.Value is *Entry
	positions map[string]*list.Element
	capacity  int
	onEvict   func()
}

// SetEvictionHook registers a callback invoked once per entry evicted
// via EvictLRU, after the victim is detached but before MarkAndDrain
// runs. Used by the metrics layer to keep proxy_cache_evictions_total
// accurate without the cache core itself depending on Prometheus.
func (idx *Index) SetEvictionHook(fn func()) {
	idx.mu.Lock()
	idx.onEvict = fn
	idx.mu.Unlock()
}

// NewIndex creates an empty index bounded to capacity entries.
func NewIndex(capacity int) *Index {
	return &Index{
		order:     list.New(),
		positions: make(map[string]*list.Element, capacity),
		capacity:  capacity,
	}
}

// Len returns the current number of entries held in the index.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.order.Len()
}

// SpaceLeft returns capacity - |order|.
func (idx *Index) SpaceLeft() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.capacity - idx.order.Len()
}

// FindAndDetach looks up key by string equality and, on a match, unlinks
// the entry from order and returns it. The returned entry is detached: it
// belongs to the caller now, not the index, and must be destroyed or
// re-inserted via PushFront.
func (idx *Index) FindAndDetach(key string) (*Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	el, ok := idx.positions[key]
	if !ok {
		return nil, false
	}
	idx.order.Remove(el)
	delete(idx.positions, key)
	return el.Value.(*Entry), true
}

// PushFront links entry as the new front of order. Fails with errFull if
// the index has no space left. On success the index owns the entry.
func (idx *Index) PushFront(e *Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.pushFrontLocked(e)
}

func (idx *Index) pushFrontLocked(e *Entry) error {
	if idx.order.Len() >= idx.capacity {
		return errFull
	}
	el := idx.order.PushFront(e)
	idx.positions[e.Key] = el
	return nil
}

// PopBack detaches and returns the least-recently-used entry, or false if
// the index is empty.
func (idx *Index) PopBack() (*Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	el := idx.order.Back()
	if el == nil {
		return nil, false
	}
	idx.order.Remove(el)
	e := el.Value.(*Entry)
	delete(idx.positions, e.Key)
	return e, true
}

// FindAndPromote fuses FindAndDetach and PushFront under a single
// critical section, which is what keeps promotion atomic against a
// concurrent inserter racing to take the same index slot. On a hit,
// the returned entry is both
// detached-then-reinserted as MRU and still owned by the index — callers
// only need to AcquireReader on it.
func (idx *Index) FindAndPromote(key string) (*Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	el, ok := idx.positions[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*Entry)
	idx.order.Remove(el)
	delete(idx.positions, key)
	// Space just freed by the detach above, so this push can never fail.
	_ = idx.pushFrontLocked(e)
	return e, true
}

// EvictLRU pops the LRU entry and drains its readers. index.lock is held
// only for the pop; MarkAndDrain runs with no Index lock held, so readers
// streaming the victim can still decrement their reader count and release
// the entry's own lock without contending on idx.mu.
func (idx *Index) EvictLRU() {
	e, ok := idx.PopBack()
	if !ok {
		return
	}
	idx.mu.Lock()
	hook := idx.onEvict
	idx.mu.Unlock()
	if hook != nil {
		hook()
	}
	e.MarkAndDrain()
}

// TotalBytes sums Size() across every entry currently in the index.
// O(n); intended for periodic metrics polling, not the hot path.
func (idx *Index) TotalBytes() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	total := 0
	for el := idx.order.Front(); el != nil; el = el.Next() {
		total += el.Value.(*Entry).Size()
	}
	return total
}
