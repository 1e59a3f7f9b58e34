package store

import "slices"

// Entry is one cached record: a primary key, its value and the
// alternate keys bound to it. Alternate keys live in the same key
// space as primary keys; KeyIndex holds the relation.
type Entry[K comparable, V any] struct {
	Key     K
	Value   V
	AltKeys []K
}

// WithAltKeys returns a copy of e whose alternate key set is extended
// by extra. Updates only ever grow the set; keys leave it when the
// entry is deleted. The receiver is not modified, and no allocation
// happens when extra adds nothing new.
func (e Entry[K, V]) WithAltKeys(extra ...K) Entry[K, V] {
	missing := 0
	for _, alt := range extra {
		if !slices.Contains(e.AltKeys, alt) {
			missing++
		}
	}
	if missing == 0 {
		return e
	}
	merged := make([]K, len(e.AltKeys), len(e.AltKeys)+missing)
	copy(merged, e.AltKeys)
	for _, alt := range extra {
		if !slices.Contains(merged, alt) {
			merged = append(merged, alt)
		}
	}
	e.AltKeys = merged
	return e
}
