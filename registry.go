package lrucache

import (
	"sort"
	"sync"

	"github.com/facebookgo/stackerr"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/multierr"

	"github.com/gneu77/lru-cache/events"
	"github.com/gneu77/lru-cache/log"
	"github.com/gneu77/lru-cache/task"
)

// namespaceCache is the type erased face the registry keeps per
// cache.
type namespaceCache interface {
	ValueType() string
	Clear() error
}

var _ namespaceCache = (*Cache[string, struct{}])(nil)

// Registry owns the infrastructure its caches share: the change bus,
// the deferred task executor, the metrics registry and the defaults.
// Namespaces are unique within one registry; separate registries are
// fully independent.
type Registry struct {
	log     log.Logger
	conf    RegistryConfig
	bus     *events.Bus
	exec    *task.Executor
	metrics metrics.Registry

	mu     sync.Mutex
	caches map[string]namespaceCache
}

func NewRegistry(l log.Logger, conf RegistryConfig) (*Registry, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.DefaultMaxSize == 0 {
		conf.DefaultMaxSize = DefaultMaxSize
	}
	return &Registry{
		log:     l,
		conf:    conf,
		bus:     events.NewBus(l),
		exec:    task.NewExecutor(l),
		metrics: metrics.NewRegistry(),
		caches:  make(map[string]namespaceCache),
	}, nil
}

// Bus returns the shared change bus. Subscribers register here.
func (r *Registry) Bus() *events.Bus { return r.bus }

// Metrics returns the registry holding the per cache counters.
func (r *Registry) Metrics() metrics.Registry { return r.metrics }

// registerLocked claims the cache's value type. Caller holds r.mu.
func (r *Registry) registerLocked(c namespaceCache) error {
	if _, taken := r.caches[c.ValueType()]; taken {
		return stackerr.Wrap(ErrNamespaceTaken)
	}
	r.caches[c.ValueType()] = c
	r.log.Infof("Cache namespace %q registered.", c.ValueType())
	return nil
}

// Namespace returns the cache registered under valueType, creating
// it on first request with the registry defaults and no fetcher. A
// namespace already registered with other key or value types is an
// error.
func Namespace[K comparable, V any](r *Registry, valueType string) (*Cache[K, V], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.caches[valueType]; ok {
		c, ok := existing.(*Cache[K, V])
		if !ok {
			return nil, stackerr.Wrap(ErrNamespaceType)
		}
		return c, nil
	}
	c, err := newCache[K, V](r, nil, Config{ValueType: valueType})
	if err != nil {
		return nil, err
	}
	if err := r.registerLocked(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Namespaces returns the registered namespace names, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvalidateAll clears every namespace inside one unit of work, in
// namespace name order, so a subscriber watching several namespaces
// gets one coalesced record. Clear errors and the dispatch error come
// back aggregated.
func (r *Registry) InvalidateAll() error {
	r.mu.Lock()
	caches := make([]namespaceCache, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.Unlock()
	sort.Slice(caches, func(i, j int) bool {
		return caches[i].ValueType() < caches[j].ValueType()
	})
	return r.bus.Batch(func() (err error) {
		for _, c := range caches {
			err = multierr.Append(err, c.Clear())
		}
		return
	})
}

// Close stops the deferred task executor after draining it. Tasks
// submitted afterwards run inline on the submitter.
func (r *Registry) Close() {
	r.exec.Close()
	r.log.Info("Cache registry closed.")
}
