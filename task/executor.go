package task

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/smallnest/chanx"

	"github.com/gneu77/lru-cache/log"
)

const executorQueueCapacity = 64

// Executor runs submitted functions one at a time, in submission
// order, on its own goroutine. Run never blocks: the queue is
// unbounded. A panicking function is recovered and logged and the
// worker keeps going.
type Executor struct {
	log   log.Logger
	queue *chanx.UnboundedChan[func()]
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewExecutor starts the worker goroutine.
func NewExecutor(l log.Logger) *Executor {
	e := &Executor{
		log:   l,
		queue: chanx.NewUnboundedChan[func()](context.Background(), executorQueueCapacity),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

// Run schedules fn to run after all previously submitted functions.
// After Close, fn runs synchronously on the calling goroutine
// instead, so late fetch settlements still make progress.
func (e *Executor) Run(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.invoke(fn)
		return
	}
	e.queue.In <- fn
	e.mu.Unlock()
}

// Close stops accepting queued work and waits for the already
// submitted functions to finish. Idempotent.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue.In)
	}
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for fn := range e.queue.Out {
		e.invoke(fn)
	}
}

func (e *Executor) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("Deferred task panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}
