package lrucache

import (
	"context"
	"sync"

	"github.com/facebookgo/stackerr"
	"go.uber.org/multierr"

	"github.com/gneu77/lru-cache/events"
	"github.com/gneu77/lru-cache/log"
	"github.com/gneu77/lru-cache/store"
	"github.com/gneu77/lru-cache/task"
)

// Cache is one bounded LRU namespace: a primary key value store with
// alternate key lookup, change records on the registry bus and an
// optional read through fetcher. All methods are safe for concurrent
// use.
//
// General schema of mutating operations:
// 1) Open or join a unit of work on the bus.
// 2) Acquire the cache mutex.
// 3) Apply the mutation, recording one fact per change as it happens.
// 4) Release the cache mutex.
// 5) Close the unit of work.
// Recording under the mutex guarantees facts are ordered exactly as
// the mutations were applied. The outermost close flushes after the
// mutex is released, so subscriber callbacks never run under cache
// locks and may use the cache freely.
type Cache[K comparable, V any] struct {
	log       log.Logger
	valueType string

	reportEvictions bool
	reportClears    bool

	bus     *events.Bus
	metrics *cacheMetrics
	fc      *fetchCoordinator[K, V]

	mu    sync.Mutex
	store *store.LRU[K, V]
	keys  *store.KeyIndex[K]
}

// New creates a cache configured by conf and registers it in r under
// conf.ValueType. A nil fetcher leaves GetOrFetch serving cache
// content only and Fetch failing.
func New[K comparable, V any](r *Registry, fetcher Fetcher[K, V], conf Config) (*Cache[K, V], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := newCache[K, V](r, fetcher, conf)
	if err != nil {
		return nil, err
	}
	if err := r.registerLocked(c); err != nil {
		return nil, err
	}
	return c, nil
}

func newCache[K comparable, V any](r *Registry, fetcher Fetcher[K, V], conf Config) (*Cache[K, V], error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	maxSize, reportEvictions, reportClears := conf.resolve(r.conf)
	c := &Cache[K, V]{
		log:             r.log.WithFields(log.Fields{"cache": conf.ValueType}),
		valueType:       conf.ValueType,
		reportEvictions: reportEvictions,
		reportClears:    reportClears,
		bus:             r.bus,
		metrics:         newCacheMetrics(conf.ValueType, r.metrics),
		store:           store.NewLRU[K, V](maxSize),
		keys:            store.NewKeyIndex[K](),
	}
	if fetcher != nil {
		c.fc = newFetchCoordinator(c, fetcher, r.exec)
	}
	return c, nil
}

// ValueType names this cache's namespace.
func (c *Cache[K, V]) ValueType() string { return c.valueType }

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// MaxSize returns the current entry bound.
func (c *Cache[K, V]) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.MaxSize()
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache[K, V]) Stats() Stats { return c.metrics.snapshot() }

// Get returns the value key names, promoting its entry to most
// recently used. Alternate keys hit too.
func (c *Cache[K, V]) Get(key K) (val V, ok bool) {
	c.mu.Lock()
	var e store.Entry[K, V]
	e, ok = c.lookup(key, true)
	c.mu.Unlock()
	if !ok {
		c.metrics.misses.Inc(1)
		return
	}
	c.metrics.hits.Inc(1)
	val = e.Value
	return
}

// Peek is Get without the promotion.
func (c *Cache[K, V]) Peek(key K) (val V, ok bool) {
	c.mu.Lock()
	var e store.Entry[K, V]
	e, ok = c.lookup(key, false)
	c.mu.Unlock()
	if !ok {
		c.metrics.misses.Inc(1)
		return
	}
	c.metrics.hits.Inc(1)
	val = e.Value
	return
}

// Has reports whether key names an entry, without promotion.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(key, false)
	return ok
}

// lookup finds the entry key names, trying key as a primary key first
// and as an alternate key second. A primary always shadows an equal
// alternate. Caller holds the cache mutex.
func (c *Cache[K, V]) lookup(key K, promote bool) (e store.Entry[K, V], ok bool) {
	get := c.store.Peek
	if promote {
		get = c.store.Get
	}
	if e, ok = get(key); ok {
		return
	}
	primary, bound := c.keys.Resolve(key)
	if !bound {
		return
	}
	return get(primary)
}

// Keys returns the primary keys, oldest first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, c.store.Len())
	c.store.Range(func(e store.Entry[K, V]) bool {
		keys = append(keys, e.Key)
		return true
	})
	return keys
}

// Range calls fn for every entry, oldest first, until fn returns
// false. The cache mutex is held throughout, so fn must not call back
// into the cache.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Range(func(e store.Entry[K, V]) bool {
		return fn(e.Key, e.Value)
	})
}

// Set stores value under key and binds the given alternate keys. An
// existing entry is updated in place: value replaced, alternate keys
// unioned, entry promoted. An alternate key bound elsewhere fails the
// whole call before anything is touched.
func (c *Cache[K, V]) Set(key K, value V, altKeys ...K) error {
	return c.mutate(func(record bool) error {
		return c.apply(store.Entry[K, V]{Key: key, Value: value, AltKeys: altKeys}, record)
	})
}

// SetAll stores the entries in order inside one unit of work, so
// subscribers get a single record for the whole batch, eviction facts
// interleaved where they happened. A conflicting entry is skipped,
// the rest still apply; the skips come back aggregated in the
// returned error.
func (c *Cache[K, V]) SetAll(entries []store.Entry[K, V]) error {
	return c.mutate(func(record bool) (err error) {
		for _, e := range entries {
			err = multierr.Append(err, c.apply(e, record))
		}
		return
	})
}

// Delete removes the entry key names, directly or through an
// alternate key, and reports whether it existed. A delete remove fact
// is recorded either way: with the entry's primary key when it
// existed, with key itself when not.
func (c *Cache[K, V]) Delete(key K) (existed bool, err error) {
	err = c.mutate(func(record bool) error {
		primary := key
		e, ok := c.store.Peek(key)
		if !ok {
			if p, bound := c.keys.Resolve(key); bound {
				primary = p
				e, ok = c.store.Peek(primary)
			}
		}
		if !ok {
			if c.fc != nil {
				c.fc.invalidate(key)
			}
			if record {
				c.recordDelete(key)
			}
			return nil
		}
		existed = true
		c.store.Delete(primary)
		c.keys.UnbindAll(e.AltKeys)
		if c.fc != nil {
			c.fc.invalidateEntry(e)
		}
		c.log.Debugf("Entry %v deleted.", primary)
		if record {
			c.recordDelete(primary)
		}
		return nil
	})
	return
}

// Clear removes every entry, alternate key binding and pending fetch
// marker. Clear remove facts are recorded oldest first when clear
// reporting is on; with it off subscribers see nothing of the clear.
func (c *Cache[K, V]) Clear() error {
	return c.mutate(func(record bool) error {
		removed := c.store.Clear()
		c.keys.Reset()
		if c.fc != nil {
			c.fc.invalidateAll()
		}
		c.log.Debugf("Cleared %v entries.", len(removed))
		if record && c.reportClears {
			for _, e := range removed {
				c.record(events.KindClearRemove, e)
			}
		}
		return nil
	})
}

// SetMaxSize rebounds the cache, evicting oldest entries down to the
// new bound. Zero is legal: the cache holds nothing and every insert
// evicts itself.
func (c *Cache[K, V]) SetMaxSize(n int) error {
	if n < 0 {
		return stackerr.Wrap(ErrNegativeSize)
	}
	return c.mutate(func(record bool) error {
		evicted := c.store.Resize(n)
		for _, e := range evicted {
			c.dropEvicted(e, record && c.reportEvictions)
		}
		return nil
	})
}

// GetOrFetch returns the cached value, falling back to the fetcher on
// a miss. With no fetcher a miss is just a miss. false with a nil
// error means the key has no entry, cached or upstream.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, key K) (V, bool, error) {
	if val, ok := c.Get(key); ok {
		return val, true, nil
	}
	if c.fc == nil {
		var zero V
		return zero, false, nil
	}
	f, err := c.fc.resolve(ctx, key)
	return c.await(ctx, f, err)
}

// Fetch asks upstream even when the key is cached, joining an in
// flight fetch rather than doubling it. The outcome replaces the
// cached entry as usual. A cache without a fetcher returns
// ErrNoFetcher.
func (c *Cache[K, V]) Fetch(ctx context.Context, key K) (V, bool, error) {
	if c.fc == nil {
		var zero V
		return zero, false, stackerr.Wrap(ErrNoFetcher)
	}
	f, err := c.fc.resolve(ctx, key)
	return c.await(ctx, f, err)
}

func (c *Cache[K, V]) await(ctx context.Context, f *task.Future[Fetched[K, V]], rerr error) (val V, ok bool, err error) {
	if rerr != nil {
		err = rerr
		return
	}
	if f == nil {
		return
	}
	got, ferr := f.Wait(ctx)
	if ferr != nil {
		err = ferr
		return
	}
	if !got.OK {
		return
	}
	val, ok = got.Entry.Value, true
	return
}

// storeFetched lands a fetched entry through the regular insert path,
// under its own primary key whatever key the fetch was asked for. A
// non nil commit is consulted under the cache mutex; when it reports
// the fetch went stale meanwhile, nothing is stored.
func (c *Cache[K, V]) storeFetched(e store.Entry[K, V], commit func() bool) error {
	return c.mutate(func(record bool) error {
		if commit != nil && !commit() {
			return nil
		}
		return c.apply(e, record)
	})
}

// mutate runs fn following the operation schema above. With nobody
// subscribed to this namespace the unit of work is skipped and fn
// runs with recording off; observable cache state is the same either
// way.
func (c *Cache[K, V]) mutate(fn func(record bool) error) error {
	if !c.bus.Interested(c.valueType) {
		c.mu.Lock()
		err := fn(false)
		c.mu.Unlock()
		return err
	}
	tx := c.bus.Begin()
	c.mu.Lock()
	err := fn(true)
	c.mu.Unlock()
	return multierr.Append(err, tx.Close())
}

// apply inserts or updates e. The conflict check runs before any
// mutation, so a conflicting entry changes nothing at all. An insert
// over the bound evicts the oldest entry, recorded after the insert
// fact. Caller holds the cache mutex.
func (c *Cache[K, V]) apply(e store.Entry[K, V], record bool) error {
	for _, alt := range e.AltKeys {
		if !c.keys.Bindable(alt, e.Key) {
			bound, _ := c.keys.Resolve(alt)
			return stackerr.Wrap(&store.ConflictError{
				AltKey:    alt,
				BoundTo:   bound,
				Requested: e.Key,
			})
		}
	}
	if old, ok := c.store.Peek(e.Key); ok {
		merged := old.WithAltKeys(e.AltKeys...)
		merged.Value = e.Value
		e = merged
	}
	for _, alt := range e.AltKeys {
		// Checked bindable above, cannot fail.
		_ = c.keys.Bind(alt, e.Key)
	}
	evicted, ok := c.store.Set(e)
	if record {
		c.record(events.KindInsert, e)
	}
	if ok {
		c.dropEvicted(evicted, record && c.reportEvictions)
	}
	return nil
}

// dropEvicted finishes the removal of an entry the store pushed out:
// alternate keys unbound, pending fetch markers forgotten, lruRemove
// fact recorded when record is set. Caller holds the cache mutex.
func (c *Cache[K, V]) dropEvicted(e store.Entry[K, V], record bool) {
	c.keys.UnbindAll(e.AltKeys)
	if c.fc != nil {
		c.fc.invalidateEntry(e)
	}
	c.metrics.evictions.Inc(1)
	c.log.Debugf("Entry %v evicted.", e.Key)
	if record {
		c.record(events.KindLRURemove, e)
	}
}

// record appends one fact to the open unit of work. Callers sit
// inside mutate's unit of work, so Record never takes its implicit
// single fact path and cannot return an error here.
func (c *Cache[K, V]) record(kind events.Kind, e store.Entry[K, V]) {
	var alts []any
	if len(e.AltKeys) != 0 {
		alts = make([]any, len(e.AltKeys))
		for i, a := range e.AltKeys {
			alts[i] = a
		}
	}
	_ = c.bus.Record(c.valueType, kind, events.Change{
		Key:     e.Key,
		Value:   e.Value,
		AltKeys: alts,
	})
}

// recordDelete appends a delete remove fact, which carries the key
// only.
func (c *Cache[K, V]) recordDelete(key K) {
	_ = c.bus.Record(c.valueType, events.KindDeleteRemove, events.Change{Key: key})
}
