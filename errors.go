package lrucache

import (
	"github.com/pkg/errors"

	"github.com/gneu77/lru-cache/events"
	"github.com/gneu77/lru-cache/internal/util"
	"github.com/gneu77/lru-cache/store"
)

var (
	ErrValueTypeRequired = errors.New("cache value type required")
	ErrNegativeSize      = errors.New("negative cache size")
	ErrNamespaceTaken    = errors.New("cache namespace already registered")
	ErrNamespaceType     = errors.New("cache namespace registered with other key or value type")
	ErrNoFetcher         = errors.New("cache has no fetcher")
)

// Is reports whether target is in err's chain. Unlike errors.Is it
// follows stackerr wraps, which expose their cause via Underlying
// rather than Unwrap.
func Is(err, target error) bool {
	return util.Walk(err, func(e error) bool { return e == target })
}

// IsValidation reports whether err was caused by invalid input:
// a missing value type, a negative size or a namespace collision.
func IsValidation(err error) bool {
	return Is(err, ErrValueTypeRequired) ||
		Is(err, ErrNegativeSize) ||
		Is(err, ErrNamespaceTaken) ||
		Is(err, ErrNamespaceType)
}

// IsNoFetcher reports whether err means a fetch was requested from a
// cache constructed without a fetcher.
func IsNoFetcher(err error) bool { return Is(err, ErrNoFetcher) }

// IsConflict reports whether err carries an alternate key conflict.
func IsConflict(err error) bool { return ConflictOf(err) != nil }

// ConflictOf returns the first alternate key conflict in err's chain,
// or nil. A SetAll error may aggregate several conflicts; walking the
// multierr chain reaches them all.
func ConflictOf(err error) (conflict *store.ConflictError) {
	util.Walk(err, func(e error) bool {
		c, ok := e.(*store.ConflictError)
		if ok {
			conflict = c
		}
		return ok
	})
	return
}

// SubscriberErrorOf returns the aggregated subscriber failure in
// err's chain, or nil. The mutation that produced the record is
// applied even when it is non-nil.
func SubscriberErrorOf(err error) (serr *events.SubscriberError) {
	util.Walk(err, func(e error) bool {
		s, ok := e.(*events.SubscriberError)
		if ok {
			serr = s
		}
		return ok
	})
	return
}
