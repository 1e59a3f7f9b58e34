package events

import (
	"fmt"
	"sort"
	"sync"

	"github.com/facebookgo/stackerr"
	"go.uber.org/multierr"

	"github.com/gneu77/lru-cache/log"
	"github.com/gneu77/lru-cache/task"
)

// SubscriberError aggregates the callback failures of one dispatch.
// By the time it is returned every subscriber has been attempted, and
// the cache mutations behind the record are final; nothing is
// unwound.
type SubscriberError struct {
	err error
}

func (e *SubscriberError) Error() string {
	return "events: subscriber callbacks failed: " + e.err.Error()
}

// Errors returns the individual callback failures.
func (e *SubscriberError) Errors() []error { return multierr.Errors(e.err) }

func (e *SubscriberError) Unwrap() error { return e.err }

// Bus is the process wide fan-out point for cache change events.
// Caches record facts into the unit of work currently open on the
// bus; closing the outermost unit dispatches one Record to the
// interested subscribers.
//
// All state is guarded by mu. Dispatch runs with mu released, so
// callbacks may freely use the bus again: subscribe, record, open
// nested units of work.
type Bus struct {
	log log.Logger

	mu      sync.Mutex
	subs    map[uint64]*subscriber
	byType  map[string]map[uint64]struct{} // active subscribers per requested type
	allType map[uint64]struct{}            // active subscribers wanting every type
	nextID  uint64

	depth  int
	record Record
	seq    uint64
}

// NewBus returns a Bus with no subscribers and no open unit of work.
func NewBus(l log.Logger) *Bus {
	return &Bus{
		log:     l,
		subs:    make(map[uint64]*subscriber),
		byType:  make(map[string]map[uint64]struct{}),
		allType: make(map[uint64]struct{}),
	}
}

// Subscribe registers cb for the given value types, or for every
// value type when none are named. The subscription starts active.
// A nil cb panics.
func (b *Bus) Subscribe(cb Callback, types ...string) *Subscription {
	if cb == nil {
		panic("events: nil subscriber callback")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &subscriber{id: b.nextID, cb: cb, active: true}
	if len(types) != 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, vt := range types {
			s.types[vt] = struct{}{}
		}
	}
	b.subs[s.id] = s
	b.indexLocked(s)
	b.log.Debugf("Subscriber %v registered.", s.id)
	return &Subscription{bus: b, id: s.id}
}

// indexLocked adds s to the interest indices. Inactive subscribers
// are never indexed; Interested stays a pure index lookup.
func (b *Bus) indexLocked(s *subscriber) {
	if !s.active {
		return
	}
	if s.types == nil {
		b.allType[s.id] = struct{}{}
		return
	}
	for vt := range s.types {
		set := b.byType[vt]
		if set == nil {
			set = make(map[uint64]struct{})
			b.byType[vt] = set
		}
		set[s.id] = struct{}{}
	}
}

func (b *Bus) unindexLocked(s *subscriber) {
	delete(b.allType, s.id)
	for vt := range s.types {
		if set := b.byType[vt]; set != nil {
			delete(set, s.id)
			if len(set) == 0 {
				delete(b.byType, vt)
			}
		}
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok {
		return
	}
	b.unindexLocked(s)
	delete(b.subs, id)
	b.log.Debugf("Subscriber %v unregistered.", id)
}

func (b *Bus) setActive(id uint64, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok || s.active == active {
		return
	}
	s.active = active
	if active {
		b.indexLocked(s)
	} else {
		b.unindexLocked(s)
	}
}

func (b *Bus) isActive(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	return ok && s.active
}

func (b *Bus) isRegistered(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[id]
	return ok
}

// Interested reports whether any active subscriber wants records for
// valueType. Callers may skip recording entirely while it is false;
// that saves cost but never changes observable behavior.
func (b *Bus) Interested(valueType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.allType) != 0 || len(b.byType[valueType]) != 0
}

// Begin opens a unit of work, or joins the one already open.
func (b *Bus) Begin() *Tx {
	b.mu.Lock()
	b.depth++
	b.mu.Unlock()
	return &Tx{bus: b}
}

// leave steps out of one Begin. The outermost leave takes the record
// and dispatches it after releasing the lock.
func (b *Bus) leave() error {
	b.mu.Lock()
	if b.depth <= 0 {
		b.mu.Unlock()
		panic("events: unit of work closed more often than opened")
	}
	b.depth--
	if b.depth > 0 {
		b.mu.Unlock()
		return nil
	}
	rec := b.record
	b.record = nil
	b.seq = 0
	b.mu.Unlock()
	if rec == nil {
		return nil
	}
	return b.dispatch(rec)
}

// Batch runs fn inside a unit of work. The flush happens whether fn
// succeeds, fails or panics; a dispatch error is merged into the
// returned error.
func (b *Bus) Batch(fn func() error) (err error) {
	tx := b.Begin()
	defer func() {
		err = multierr.Append(err, tx.Close())
	}()
	return fn()
}

// BatchFuture runs start inside a unit of work that stays open until
// the future returned by start settles. This is the deferred shape of
// Batch: the returned future settles after the flush, with a dispatch
// error merged in. A start that panics still closes the unit of work.
func BatchFuture[T any](b *Bus, start func() *task.Future[T]) *task.Future[T] {
	tx := b.Begin()
	inner := func() (f *task.Future[T]) {
		defer func() {
			if f == nil {
				tx.Close()
			}
		}()
		return start()
	}()
	if inner == nil {
		return task.Failed[T](stackerr.New("events: BatchFuture got no future"))
	}
	out := task.New[T]()
	inner.OnComplete(func(val T, err error) {
		err = multierr.Append(err, tx.Close())
		out.Complete(val, err)
	})
	return out
}

// Record appends one fact for valueType to the open unit of work and
// stamps it with the next sequence number. With no unit open it opens
// an implicit single fact one, so unbatched records still flush
// through the same path; the dispatch error of that flush, if any, is
// returned.
func (b *Bus) Record(valueType string, kind Kind, c Change) error {
	b.mu.Lock()
	if b.depth == 0 {
		b.mu.Unlock()
		return b.Batch(func() error {
			return b.Record(valueType, kind, c)
		})
	}
	if b.record == nil {
		b.record = make(Record)
	}
	tc := b.record[valueType]
	if tc == nil {
		tc = &TypeChanges{}
		b.record[valueType] = tc
	}
	c.Order = b.seq
	b.seq++
	switch kind {
	case KindInsert:
		tc.Inserts = append(tc.Inserts, c)
	case KindClearRemove:
		tc.ClearRemoves = append(tc.ClearRemoves, c)
	case KindLRURemove:
		tc.LRURemoves = append(tc.LRURemoves, c)
	case KindDeleteRemove:
		tc.DeleteRemoves = append(tc.DeleteRemoves, c)
	default:
		b.mu.Unlock()
		panic(fmt.Sprintf("events: unknown change kind %v", kind))
	}
	b.mu.Unlock()
	return nil
}

// dispatch delivers rec to every active subscriber interested in at
// least one of its value types, in registration order. All callbacks
// run even when some fail; the failures come back aggregated.
func (b *Bus) dispatch(rec Record) error {
	b.mu.Lock()
	receivers := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.active && s.wants(rec) {
			receivers = append(receivers, s)
		}
	}
	b.mu.Unlock()
	if len(receivers) == 0 {
		return nil
	}
	sort.Slice(receivers, func(i, j int) bool { return receivers[i].id < receivers[j].id })
	b.log.Debugf("Dispatching record with %v value types to %v subscribers.", len(rec), len(receivers))
	var errs error
	for _, s := range receivers {
		if err := b.deliver(s, rec); err != nil {
			b.log.Errorf("Subscriber %v failed: %v", s.id, err)
			errs = multierr.Append(errs, err)
		}
	}
	if errs == nil {
		return nil
	}
	return &SubscriberError{err: errs}
}

// deliver invokes one callback, turning a panic into an error so the
// remaining subscribers still run.
func (b *Bus) deliver(s *subscriber, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = stackerr.Newf("subscriber %v panic: %v", s.id, r)
		}
	}()
	return s.cb(rec)
}
