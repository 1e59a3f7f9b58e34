// Package events implements the change notification side of the
// cache: mutations are recorded as ordered facts inside coalescing
// units of work, and subscribers receive one immutable Record per
// flushed unit.
//
// Structure:
//   - Bus holds the subscriber table, the per value type interest
//     indices and the state of the open unit of work.
//   - Tx is a join token: Begin opens or joins the unit, the Close
//     that leaves the outermost level flushes.
//   - Record groups the facts of one flush by value type, each fact
//     stamped with a sequence number unique within the flush.
//
// Limitations:
//   - Callbacks run on the goroutine closing the outermost unit of
//     work. A slow subscriber delays that caller, nobody else.
package events
