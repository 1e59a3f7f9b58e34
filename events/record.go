package events

import "fmt"

// Kind classifies one recorded cache change.
type Kind uint8

const (
	// KindInsert is an insert or update of an entry.
	KindInsert Kind = iota
	// KindClearRemove is a removal caused by clearing a whole cache.
	KindClearRemove
	// KindLRURemove is an eviction enforcing the size bound.
	KindLRURemove
	// KindDeleteRemove is an explicit delete by key, recorded even
	// when the key was absent.
	KindDeleteRemove
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindClearRemove:
		return "clearRemove"
	case KindLRURemove:
		return "lruRemove"
	case KindDeleteRemove:
		return "deleteRemove"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Change is one recorded fact. Order is unique and strictly
// increasing within one flushed Record, across kinds and value types,
// so subscribers can replay the exact mutation order. Delete remove
// facts carry only the key.
type Change struct {
	Order   uint64
	Key     any
	Value   any
	AltKeys []any
}

// TypeChanges holds the facts recorded for one value type within one
// unit of work, grouped by kind and ordered within each group.
type TypeChanges struct {
	Inserts       []Change
	ClearRemoves  []Change
	LRURemoves    []Change
	DeleteRemoves []Change
}

// Empty reports whether nothing was recorded.
func (c *TypeChanges) Empty() bool {
	return len(c.Inserts) == 0 && len(c.ClearRemoves) == 0 &&
		len(c.LRURemoves) == 0 && len(c.DeleteRemoves) == 0
}

// Record maps value type names to their changes for one flush.
// Subscribers must treat it as read-only; it is shared between them.
type Record map[string]*TypeChanges
