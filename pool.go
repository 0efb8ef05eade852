// Package pool implements a generic, bounded pool of reusable resources
// shared between concurrent callers. Callers Acquire a handle, use it
// exclusively, and Release it; the pool caches idle handles, creates new
// ones on demand up to Max, maintains a floor of Min warm handles,
// validates handles before dispensing them, reaps idle handles past their
// timeout, and supports an orderly Drain as well as a forced
// DestroyAllNow.
package pool

import (
	"container/list"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stats is a read-only snapshot of a pool's counters.
type Stats struct {
	Size      int
	Available int
	Using     int
	Waiting   int
	MaxSize   int
	MinSize   int
	Name      string
}

// Pool is a bounded pool of resources of type T. The zero value is not
// usable; construct one with New. A Pool must not be copied after first
// use — it owns a channel and a background goroutine.
type Pool[T any] struct {
	engine         *engine[T]
	id             string
	name           string
	acquireTimeout time.Duration
}

// New constructs a Pool from cfg and starts its background engine
// goroutine. The minimum floor is not pre-warmed synchronously — New
// returns before any resource exists — but a warm-up is scheduled right
// away so a pool that never sees a destroy still reaches Min eventually.
func New[T any](cfg Config[T]) (*Pool[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	id := uuid.NewString()
	logger, err := buildLogger(cfg, id)
	if err != nil {
		return nil, err
	}

	e := &engine[T]{
		factory:         cfg.Factory,
		name:            cfg.Name,
		min:             cfg.Min,
		max:             cfg.Max,
		idleTimeout:     cfg.IdleTimeout,
		reapInterval:    cfg.ReapInterval,
		refreshIdle:     cfg.refreshIdle(),
		returnToHead:    cfg.ReturnToHead,
		log:             logger,
		commands:        make(chan command[T]),
		available:       list.New(),
		inUse:           make(map[uint64]T),
		underValidation: make(map[uint64]T),
		waiters:         newWaiterQueue[T](),
	}
	go e.run()

	commands := e.commands
	go func() { commands <- bootstrapCmd[T]{} }()

	return &Pool[T]{
		engine:         e,
		id:             id,
		name:           cfg.Name,
		acquireTimeout: cfg.AcquireTimeout,
	}, nil
}

func (p *Pool[T]) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.acquireTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.acquireTimeout)
}

func classifyCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrAcquireTimeout
	}
	return err
}

// Acquire blocks until a handle is delivered, ctx is done (→ timeout or
// cancellation), the factory fails the creation this waiter ended up
// consuming (→ FactoryError), or the pool is draining (→ ErrDraining).
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	w := &waiter[T]{result: make(chan acquireResult[T], 1)}

	select {
	case p.engine.commands <- &acquireCmd[T]{w: w}:
	case <-ctx.Done():
		var zero T
		return zero, classifyCtxErr(ctx.Err())
	}

	select {
	case res := <-w.result:
		return res.handle, res.err
	case <-ctx.Done():
	}

	// ctx expired before the dispenser served this waiter. Ask the engine
	// to cancel it; the buffered result channel makes this race-free
	// against a dispense that fulfills the waiter in the same instant.
	ack := make(chan struct{})
	select {
	case p.engine.commands <- &cancelWaiterCmd[T]{w: w, done: ack}:
		<-ack
	case res := <-w.result:
		return res.handle, res.err
	}

	select {
	case res := <-w.result:
		return res.handle, res.err
	default:
		var zero T
		return zero, classifyCtxErr(ctx.Err())
	}
}

// Release returns handle to the pool. Double releases and releases of a
// handle this pool never issued are logged as programmer errors, not
// reported to the caller.
func (p *Pool[T]) Release(handle T) {
	p.engine.commands <- &releaseCmd[T]{handle: handle}
}

// Destroy tears handle down instead of returning it to the pool.
func (p *Pool[T]) Destroy(handle T) {
	p.engine.commands <- &destroyCmd[T]{handle: handle}
}

// Drain stops accepting new acquisitions and waits until the pool is
// quiescent: no pending waiters, no in-flight validations, and every live
// resource back in the available set. It returns early with ctx's error if
// ctx is done first; the pool keeps draining regardless.
func (p *Pool[T]) Drain(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.engine.commands <- &drainCmd[T]{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DestroyAllNow forcibly destroys every currently available resource. It
// does not wait for in-use resources and does not itself stop the minimum
// floor from re-creating resources (set Min to 0 first if that's wanted).
func (p *Pool[T]) DestroyAllNow() {
	done := make(chan struct{})
	p.engine.commands <- &destroyAllNowCmd[T]{done: done}
	<-done
}

// Stats returns a consistent snapshot of the pool's counters.
func (p *Pool[T]) Stats() Stats {
	result := make(chan Stats, 1)
	p.engine.commands <- &statsCmd[T]{result: result}
	return <-result
}

func (p *Pool[T]) Size() int      { return p.Stats().Size }
func (p *Pool[T]) Available() int { return p.Stats().Available }
func (p *Pool[T]) Using() int     { return p.Stats().Using }
func (p *Pool[T]) Waiting() int   { return p.Stats().Waiting }
func (p *Pool[T]) MaxSize() int   { return p.Stats().MaxSize }
func (p *Pool[T]) MinSize() int   { return p.Stats().MinSize }
func (p *Pool[T]) Name() string   { return p.name }

type statsCmd[T any] struct {
	result chan Stats
}

func (c *statsCmd[T]) exec(e *engine[T]) {
	c.result <- Stats{
		Size:      e.count,
		Available: e.available.Len(),
		Using:     len(e.inUse),
		Waiting:   e.waiters.len(),
		MaxSize:   e.max,
		MinSize:   e.min,
		Name:      e.name,
	}
}
