//go:build debug
// +build debug

package tag

// Debug is true in builds with the debug tag. Debug builds run extra
// invariant checks and scrub released references.
const Debug = true
