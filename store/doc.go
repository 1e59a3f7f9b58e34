// Package store holds the data structures under the cache: a bounded
// LRU map whose entries live in a handle addressed slab, and the
// alternate to primary key index.
//
// Structure:
//   - LRU keeps entries in a dense slot slice. The recency chain
//     links slot handles, not pointers, with sentinel slots for head
//     and tail. Freed slots are recycled through a free list.
//   - KeyIndex is the alternate key relation: every alternate key
//     maps to at most one primary key.
//
// Limitations:
//   - Nothing here is goroutine safe. The owning cache serializes
//     access and keeps LRU and KeyIndex consistent with each other.
package store
