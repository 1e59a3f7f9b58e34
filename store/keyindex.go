package store

import (
	"fmt"

	"github.com/facebookgo/stackerr"
)

// ConflictError reports an attempt to bind an alternate key that is
// already bound to a different primary key.
type ConflictError struct {
	AltKey    interface{}
	BoundTo   interface{}
	Requested interface{}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: alternate key %v is bound to %v, refusing rebind to %v",
		e.AltKey, e.BoundTo, e.Requested)
}

// KeyIndex is the alternate key relation: every alternate key maps to
// at most one primary key, many alternate keys may share one primary.
// The index never shrinks on its own; the owning cache unbinds keys
// when entries leave.
type KeyIndex[K comparable] struct {
	index map[K]K
}

// NewKeyIndex returns an empty index.
func NewKeyIndex[K comparable]() *KeyIndex[K] {
	return &KeyIndex[K]{index: make(map[K]K)}
}

// Bind maps alt to primary. Rebinding alt to the primary it already
// maps to is a no-op; binding it to a different primary fails with a
// ConflictError and changes nothing.
func (i *KeyIndex[K]) Bind(alt, primary K) error {
	if bound, ok := i.index[alt]; ok {
		if bound == primary {
			return nil
		}
		return stackerr.Wrap(&ConflictError{AltKey: alt, BoundTo: bound, Requested: primary})
	}
	i.index[alt] = primary
	return nil
}

// Bindable reports whether Bind(alt, primary) would succeed.
func (i *KeyIndex[K]) Bindable(alt, primary K) bool {
	bound, ok := i.index[alt]
	return !ok || bound == primary
}

// Resolve returns the primary key bound to alt.
func (i *KeyIndex[K]) Resolve(alt K) (primary K, ok bool) {
	primary, ok = i.index[alt]
	return
}

// Unbind removes alt from the relation.
func (i *KeyIndex[K]) Unbind(alt K) {
	delete(i.index, alt)
}

// UnbindAll removes every alternate key in alts.
func (i *KeyIndex[K]) UnbindAll(alts []K) {
	for _, alt := range alts {
		delete(i.index, alt)
	}
}

// Reset empties the relation.
func (i *KeyIndex[K]) Reset() {
	i.index = make(map[K]K)
}

// Len returns the number of bound alternate keys.
func (i *KeyIndex[K]) Len() int { return len(i.index) }
