//go:build !debug
// +build !debug

package store

// checkInvariants does the real work only in debug builds, see
// check_invariants_debug.go.
func (l *LRU[K, V]) checkInvariants() {}
