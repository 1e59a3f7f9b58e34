package lrucache

import (
	"github.com/rcrowley/go-metrics"
)

// Stats is a point in time snapshot of one cache's counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Fetches    int64
	FetchJoins int64
}

// cacheMetrics are the per namespace counters, registered in the
// registry's metrics.Registry as "<valueType>.<name>". Evictions
// count size bound enforcement only, resize included; Fetches count
// upstream fetcher invocations, FetchJoins waits deduplicated onto an
// in-flight fetch.
type cacheMetrics struct {
	hits       metrics.Counter
	misses     metrics.Counter
	evictions  metrics.Counter
	fetches    metrics.Counter
	fetchJoins metrics.Counter
}

func newCacheMetrics(valueType string, r metrics.Registry) *cacheMetrics {
	return &cacheMetrics{
		hits:       metrics.NewRegisteredCounter(valueType+".hits", r),
		misses:     metrics.NewRegisteredCounter(valueType+".misses", r),
		evictions:  metrics.NewRegisteredCounter(valueType+".evictions", r),
		fetches:    metrics.NewRegisteredCounter(valueType+".fetches", r),
		fetchJoins: metrics.NewRegisteredCounter(valueType+".fetch_joins", r),
	}
}

func (m *cacheMetrics) snapshot() Stats {
	return Stats{
		Hits:       m.hits.Count(),
		Misses:     m.misses.Count(),
		Evictions:  m.evictions.Count(),
		Fetches:    m.fetches.Count(),
		FetchJoins: m.fetchJoins.Count(),
	}
}
