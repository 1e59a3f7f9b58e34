package store

import (
	"fmt"

	"github.com/gneu77/lru-cache/internal/tag"
)

// handle addresses a slot in the slab. A handle stays valid for the
// whole lifetime of the entry occupying its slot.
type handle int32

const (
	headHandle handle = 0
	tailHandle handle = 1
	noHandle   handle = -1
)

// slot is one slab cell: either a live entry chained between the
// sentinels, or a free cell chained into the free list through next.
type slot[K comparable, V any] struct {
	entry Entry[K, V]
	prev  handle
	next  handle
}

// LRU is a bounded map with true least recently used eviction order.
// Entries live in a dense slab and the recency chain stores handles,
// so the structure uses no per-entry pointers beside the key index.
// Slots 0 and 1 are the head and tail sentinels; every live slot has
// both neighbors, which keeps the link operations free of nil checks.
//
// Invariants:
//   - index maps exactly the keys of the chained slots.
//   - following next from head visits every live slot once and ends
//     at tail; prev mirrors next.
//   - free slots are reachable from freeHead through next and are
//     neither chained nor indexed.
//   - Len() <= MaxSize() between method calls.
type LRU[K comparable, V any] struct {
	maxSize  int
	slots    []slot[K, V]
	freeHead handle
	index    map[K]handle
}

// NewLRU returns an empty LRU bounded to maxSize entries. A maxSize
// of zero is legal, every insert then evicts immediately. Negative
// maxSize panics.
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	if maxSize < 0 {
		panic(fmt.Sprintf("store: negative max size %v", maxSize))
	}
	l := &LRU[K, V]{
		maxSize:  maxSize,
		slots:    make([]slot[K, V], 2),
		freeHead: noHandle,
		index:    make(map[K]handle),
	}
	l.link(headHandle, tailHandle)
	return l
}

func (l *LRU[K, V]) link(a, b handle) {
	l.slots[a].next = b
	l.slots[b].prev = a
}

// detach takes h out of the chain. The slot stays allocated.
func (l *LRU[K, V]) detach(h handle) {
	l.link(l.slots[h].prev, l.slots[h].next)
	if tag.Debug {
		l.slots[h].prev = noHandle
		l.slots[h].next = noHandle
	}
}

// attach links h in front of the tail sentinel, the most recently
// used position.
func (l *LRU[K, V]) attach(h handle) {
	l.link(l.slots[tailHandle].prev, h)
	l.link(h, tailHandle)
}

// oldest returns the least recently used live handle, or noHandle.
func (l *LRU[K, V]) oldest() handle {
	h := l.slots[headHandle].next
	if h == tailHandle {
		return noHandle
	}
	return h
}

// alloc takes a slot from the free list or grows the slab.
func (l *LRU[K, V]) alloc(e Entry[K, V]) handle {
	if h := l.freeHead; h != noHandle {
		l.freeHead = l.slots[h].next
		l.slots[h] = slot[K, V]{entry: e}
		return h
	}
	l.slots = append(l.slots, slot[K, V]{entry: e})
	return handle(len(l.slots) - 1)
}

// release zeroes the slot, so the entry stops retaining its key and
// value, and pushes it onto the free list.
func (l *LRU[K, V]) release(h handle) {
	l.slots[h] = slot[K, V]{prev: noHandle, next: l.freeHead}
	l.freeHead = h
}

// Get returns the entry for key and promotes it to most recently
// used.
func (l *LRU[K, V]) Get(key K) (e Entry[K, V], ok bool) {
	h, ok := l.index[key]
	if !ok {
		return
	}
	l.detach(h)
	l.attach(h)
	return l.slots[h].entry, true
}

// Peek returns the entry for key without touching recency order.
func (l *LRU[K, V]) Peek(key K) (e Entry[K, V], ok bool) {
	h, ok := l.index[key]
	if !ok {
		return
	}
	return l.slots[h].entry, true
}

// Contains reports presence of key without touching recency order.
func (l *LRU[K, V]) Contains(key K) bool {
	_, ok := l.index[key]
	return ok
}

// Set inserts e, or replaces the entry sharing its primary key, and
// makes it the most recently used. When the insert overflows the
// bound, the least recently used entry is evicted and returned.
func (l *LRU[K, V]) Set(e Entry[K, V]) (evicted Entry[K, V], ok bool) {
	defer l.checkInvariants()
	if h, exists := l.index[e.Key]; exists {
		l.slots[h].entry = e
		l.detach(h)
		l.attach(h)
		return
	}
	h := l.alloc(e)
	l.index[e.Key] = h
	l.attach(h)
	if len(l.index) > l.maxSize {
		evicted, ok = l.evictOldest()
	}
	return
}

// evictOldest removes and returns the least recently used entry.
func (l *LRU[K, V]) evictOldest() (e Entry[K, V], ok bool) {
	h := l.oldest()
	if h == noHandle {
		return
	}
	e = l.slots[h].entry
	l.detach(h)
	delete(l.index, e.Key)
	l.release(h)
	return e, true
}

// Delete removes the entry for key and reports whether it existed.
func (l *LRU[K, V]) Delete(key K) bool {
	defer l.checkInvariants()
	h, ok := l.index[key]
	if !ok {
		return false
	}
	l.detach(h)
	delete(l.index, key)
	l.release(h)
	return true
}

// Resize changes the bound and evicts least recently used entries
// until it holds again. Evicted entries are returned oldest first.
// Negative newMaxSize panics; zero empties the map.
func (l *LRU[K, V]) Resize(newMaxSize int) (evicted []Entry[K, V]) {
	if newMaxSize < 0 {
		panic(fmt.Sprintf("store: negative max size %v", newMaxSize))
	}
	defer l.checkInvariants()
	l.maxSize = newMaxSize
	for len(l.index) > l.maxSize {
		e, ok := l.evictOldest()
		if !ok {
			break
		}
		evicted = append(evicted, e)
	}
	return
}

// Clear removes every entry and returns them oldest first. The slab
// is dropped as one piece instead of entry by entry.
func (l *LRU[K, V]) Clear() (removed []Entry[K, V]) {
	defer l.checkInvariants()
	if len(l.index) == 0 {
		return
	}
	removed = make([]Entry[K, V], 0, len(l.index))
	for h := l.slots[headHandle].next; h != tailHandle; h = l.slots[h].next {
		removed = append(removed, l.slots[h].entry)
	}
	l.slots = make([]slot[K, V], 2)
	l.link(headHandle, tailHandle)
	l.freeHead = noHandle
	l.index = make(map[K]handle)
	return
}

// Len returns the number of live entries.
func (l *LRU[K, V]) Len() int { return len(l.index) }

// MaxSize returns the current bound.
func (l *LRU[K, V]) MaxSize() int { return l.maxSize }

// Range calls fn for every entry, least recently used first, until
// fn returns false. Recency order is not touched.
func (l *LRU[K, V]) Range(fn func(Entry[K, V]) bool) {
	for h := l.slots[headHandle].next; h != tailHandle; h = l.slots[h].next {
		if !fn(l.slots[h].entry) {
			return
		}
	}
}
