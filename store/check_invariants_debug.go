//go:build debug
// +build debug

package store

import (
	. "github.com/onsi/gomega"
)

// checkInvariants verifies the structure described in the LRU doc
// comment. It requires a registered gomega fail handler, so it is
// meant for test runs with the debug build tag.
func (l *LRU[K, V]) checkInvariants() {
	Expect(len(l.slots)).To(BeNumerically(">=", 2), "sentinel slots missing")
	chained := make(map[handle]struct{}, len(l.index))
	prev := headHandle
	for h := l.slots[headHandle].next; h != tailHandle; h = l.slots[h].next {
		Expect(h).To(BeNumerically(">", tailHandle), "sentinel or invalid handle on chain")
		Expect(int(h)).To(BeNumerically("<", len(l.slots)), "chain handle out of slab")
		_, seen := chained[h]
		Expect(seen).To(BeFalse(), "chain visits a slot twice")
		chained[h] = struct{}{}
		Expect(l.slots[h].prev).To(Equal(prev), "prev does not mirror next")
		indexed, ok := l.index[l.slots[h].entry.Key]
		Expect(ok).To(BeTrue(), "chained entry missing from index")
		Expect(indexed).To(Equal(h), "index points at the wrong slot")
		prev = h
	}
	Expect(l.slots[tailHandle].prev).To(Equal(prev), "tail does not close the chain")
	Expect(len(chained)).To(Equal(len(l.index)), "chain and index disagree on size")
	Expect(len(l.index)).To(BeNumerically("<=", l.maxSize), "bound violated")

	free := 0
	for h := l.freeHead; h != noHandle; h = l.slots[h].next {
		_, onChain := chained[h]
		Expect(onChain).To(BeFalse(), "free slot still chained")
		free++
		Expect(free).To(BeNumerically("<=", len(l.slots)), "free list cycles")
	}
	Expect(free+len(l.index)+2).To(Equal(len(l.slots)), "slots leaked")
}
