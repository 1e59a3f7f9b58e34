// Package lrucache provides bounded LRU cache namespaces with
// alternate key lookup, coalesced change records and read through
// fetching deduplicated per key. A Registry owns the infrastructure
// its namespaces share: change bus, deferred task executor, metrics
// and defaults.
package lrucache
