package lrucache

import (
	"context"
	"sync"

	"github.com/facebookgo/stackerr"

	"github.com/gneu77/lru-cache/store"
	"github.com/gneu77/lru-cache/task"
)

// Fetcher loads the entry for a key the cache does not hold. It runs
// under the fetch coordinator lock, so concurrent lookups of the same
// key join one invocation instead of repeating it; fetchers that do
// slow work must return FetchLater and do the work behind the future.
// A fetcher must not call back into its own cache.
type Fetcher[K comparable, V any] func(ctx context.Context, key K) (FetchResult[K, V], error)

// Fetched is a fetch outcome. The zero value means the key has no
// entry upstream; that is a result, not an error.
type Fetched[K comparable, V any] struct {
	Entry store.Entry[K, V]
	OK    bool
}

// FetchedEntry wraps e as a present fetch outcome.
func FetchedEntry[K comparable, V any](e store.Entry[K, V]) Fetched[K, V] {
	return Fetched[K, V]{Entry: e, OK: true}
}

// FetchResult is what a Fetcher returns: an entry right away, no
// entry at all, or a future settling later.
type FetchResult[K comparable, V any] struct {
	now   Fetched[K, V]
	later *task.Future[Fetched[K, V]]
}

// FetchNow resolves the fetch to e immediately.
func FetchNow[K comparable, V any](e store.Entry[K, V]) FetchResult[K, V] {
	return FetchResult[K, V]{now: FetchedEntry(e)}
}

// FetchNone reports immediately that the key has no entry.
func FetchNone[K comparable, V any]() FetchResult[K, V] {
	return FetchResult[K, V]{}
}

// FetchLater defers the outcome to f.
func FetchLater[K comparable, V any](f *task.Future[Fetched[K, V]]) FetchResult[K, V] {
	return FetchResult[K, V]{later: f}
}

// fetchCoordinator deduplicates fetches per key. A key with an
// unsettled deferred fetch has a marker in pending; every lookup
// while the marker is there joins the same future.
//
// Lock order: the cache mutex may be held when mu is taken (removal
// paths invalidate markers, settlements consume theirs inside the
// store's critical section), so nothing here touches the cache while
// holding mu.
type fetchCoordinator[K comparable, V any] struct {
	cache *Cache[K, V]
	fetch Fetcher[K, V]
	exec  *task.Executor

	mu      sync.Mutex
	pending map[K]*task.Future[Fetched[K, V]]
}

func newFetchCoordinator[K comparable, V any](c *Cache[K, V], f Fetcher[K, V], exec *task.Executor) *fetchCoordinator[K, V] {
	return &fetchCoordinator[K, V]{
		cache:   c,
		fetch:   f,
		exec:    exec,
		pending: make(map[K]*task.Future[Fetched[K, V]]),
	}
}

// resolve returns a future settling with the key's fetch outcome. A
// nil future with a nil error means upstream reported no entry. The
// caller must not hold the cache mutex.
func (fc *fetchCoordinator[K, V]) resolve(ctx context.Context, key K) (*task.Future[Fetched[K, V]], error) {
	fc.mu.Lock()
	if f, ok := fc.pending[key]; ok {
		fc.mu.Unlock()
		fc.cache.metrics.fetchJoins.Inc(1)
		return f, nil
	}
	fc.cache.metrics.fetches.Inc(1)
	res, err := fc.fetch(ctx, key)
	if err != nil {
		fc.mu.Unlock()
		return nil, stackerr.Wrap(err)
	}
	if res.later != nil {
		derived := task.New[Fetched[K, V]]()
		fc.pending[key] = derived
		fc.mu.Unlock()
		res.later.OnComplete(func(got Fetched[K, V], ferr error) {
			fc.exec.Run(func() { fc.settle(key, derived, got, ferr) })
		})
		return derived, nil
	}
	fc.mu.Unlock()
	if !res.now.OK {
		return nil, nil
	}
	if serr := fc.cache.storeFetched(res.now.Entry, nil); serr != nil {
		return nil, serr
	}
	return task.Resolved(res.now), nil
}

// settle runs on the shared executor once the upstream future is
// done. The marker is consumed inside the store's critical section,
// the same one removals invalidate under, so a removal racing the
// settlement either clears the marker first and the store backs off,
// or removes the stored entry afterwards. An entry deleted during its
// fetch stays deleted. Waiters get the outcome either way.
func (fc *fetchCoordinator[K, V]) settle(key K, derived *task.Future[Fetched[K, V]], got Fetched[K, V], ferr error) {
	if ferr != nil {
		fc.consume(key, derived)
		derived.Complete(Fetched[K, V]{}, stackerr.Wrap(ferr))
		return
	}
	if !got.OK || !fc.current(key, derived) {
		fc.consume(key, derived)
		derived.Complete(got, nil)
		return
	}
	serr := fc.cache.storeFetched(got.Entry, func() bool {
		return fc.consume(key, derived)
	})
	if serr != nil {
		derived.Complete(Fetched[K, V]{}, serr)
		return
	}
	derived.Complete(got, nil)
}

// current reports whether derived is still the key's pending marker.
func (fc *fetchCoordinator[K, V]) current(key K, derived *task.Future[Fetched[K, V]]) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pending[key] == derived
}

// consume clears the key's marker if derived still holds it and
// reports whether it did. May be called with the cache mutex held.
func (fc *fetchCoordinator[K, V]) consume(key K, derived *task.Future[Fetched[K, V]]) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.pending[key] != derived {
		return false
	}
	delete(fc.pending, key)
	return true
}

// invalidate forgets the key's pending marker. An in-flight fetch
// still settles its waiters, but its outcome is not stored.
func (fc *fetchCoordinator[K, V]) invalidate(key K) {
	fc.mu.Lock()
	delete(fc.pending, key)
	fc.mu.Unlock()
}

// invalidateEntry forgets every marker reachable through e: its
// primary key and all its alternate keys. Fetches may be pending
// under any of them.
func (fc *fetchCoordinator[K, V]) invalidateEntry(e store.Entry[K, V]) {
	fc.mu.Lock()
	delete(fc.pending, e.Key)
	for _, alt := range e.AltKeys {
		delete(fc.pending, alt)
	}
	fc.mu.Unlock()
}

func (fc *fetchCoordinator[K, V]) invalidateAll() {
	fc.mu.Lock()
	fc.pending = make(map[K]*task.Future[Fetched[K, V]])
	fc.mu.Unlock()
}

func (fc *fetchCoordinator[K, V]) pendingCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.pending)
}
