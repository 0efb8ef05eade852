package pool

import (
	"container/list"
	"context"
	"reflect"
	"time"
)

// command is a message processed by the engine's single run loop. Every
// externally triggered event — Acquire, Release, Destroy, a factory
// callback, a reaper tick — is one of these. Acquire, Release, Destroy, a
// rejected async validation and a create that finds no waiter end by
// invoking the dispenser; a failed create defers it to the next turn. One
// goroutine owns all mutable state; nothing else ever touches it.
type command[T any] interface {
	exec(e *engine[T])
}

// slot is an available resource: a handle paired with the instant it
// should be considered for reaping.
type slot[T any] struct {
	token     uint64
	handle    T
	expiresAt time.Time
}

// engine owns the pool's mutable state. Every field below is touched only
// from the goroutine running engine.run; no mutex is needed because the
// commands channel is the only way in.
type engine[T any] struct {
	factory      Factory[T]
	name         string
	min, max     int
	idleTimeout  time.Duration
	reapInterval time.Duration
	refreshIdle  bool
	returnToHead bool
	log          Logger

	commands chan command[T]
	pending  []command[T] // commands deferred to "the next scheduling turn"

	available       *list.List // of *slot[T], head-first consumption
	inUse           map[uint64]T
	underValidation map[uint64]T
	waiters         *waiterQueue[T]

	count     int
	draining  bool
	nextToken uint64

	reapArmed bool
	reapTimer *time.Timer

	drainWaiters   []chan struct{}
	drainPollArmed bool
}

func (e *engine[T]) run() {
	for {
		var cmd command[T]
		if len(e.pending) > 0 {
			cmd, e.pending = e.pending[0], e.pending[1:]
		} else {
			cmd = <-e.commands
		}
		cmd.exec(e)
	}
}

func (e *engine[T]) deferDispense() {
	e.pending = append(e.pending, dispenseCmd[T]{})
}

type dispenseCmd[T any] struct{}

func (dispenseCmd[T]) exec(e *engine[T]) { e.dispense() }

type bootstrapCmd[T any] struct{}

func (bootstrapCmd[T]) exec(e *engine[T]) { e.ensureMinimum() }

// --- identity helpers -------------------------------------------------
//
// T is not constrained to be comparable (a handle might be a struct with
// slice fields), so set membership is decided with reflect.DeepEqual,
// which agrees with == for the comparable types handles are in practice
// (pointers, ints, strings). Sets are indexed internally by a pool-issued
// token; these helpers translate a caller-supplied bare handle back to its
// token.

func handleEq[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

func (e *engine[T]) newToken() uint64 {
	e.nextToken++
	return e.nextToken
}

func (e *engine[T]) findAvailable(handle T) (uint64, bool) {
	for elem := e.available.Front(); elem != nil; elem = elem.Next() {
		if s := elem.Value.(*slot[T]); handleEq(s.handle, handle) {
			return s.token, true
		}
	}
	return 0, false
}

func (e *engine[T]) findInUse(handle T) (uint64, bool) {
	for token, h := range e.inUse {
		if handleEq(h, handle) {
			return token, true
		}
	}
	return 0, false
}

func (e *engine[T]) findUnderValidation(handle T) (uint64, bool) {
	for token, h := range e.underValidation {
		if handleEq(h, handle) {
			return token, true
		}
	}
	return 0, false
}

func (e *engine[T]) removeAvailableByToken(token uint64) {
	for elem := e.available.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*slot[T]).token == token {
			e.available.Remove(elem)
			return
		}
	}
}

func (e *engine[T]) insertAvailable(token uint64, handle T) {
	e.insertAvailableSlot(&slot[T]{
		token:     token,
		handle:    handle,
		expiresAt: time.Now().Add(e.idleTimeout),
	})
}

func (e *engine[T]) insertAvailableSlot(s *slot[T]) {
	if e.returnToHead {
		e.available.PushFront(s)
	} else {
		e.available.PushBack(s)
	}
	e.armReaper()
}

// destroyHandle is the common accounting path for every way a handle can
// die: explicit Destroy, reap, validation rejection, or forced shutdown.
// Callers must already have removed the handle from whichever set held it.
func (e *engine[T]) destroyHandle(handle T, reason string, level Level) {
	e.count--
	if e.count < 0 {
		e.count = 0
	}
	e.factory.Destroy(handle)
	e.log.Log(reason, level)
	e.ensureMinimum()
}

func (e *engine[T]) ensureMinimum() {
	if e.draining {
		return
	}
	for e.count < e.min {
		e.beginCreate()
	}
}

// --- dispenser -----------------------------------------------------------

func (e *engine[T]) dispense() {
	if e.waiters.len() == 0 {
		return
	}
	switch v := e.factory.Check.(type) {
	case SyncValidator[T]:
		e.dispenseSync(v)
	case AsyncValidator[T]:
		e.dispenseAsync(v)
	}
	if e.waiters.len() > 0 && e.count < e.max {
		e.beginCreate()
	}
}

// dispenseSync walks the available list head-first, destroying anything
// that fails validation, and stops as soon as it can satisfy the head
// waiter with a valid handle.
func (e *engine[T]) dispenseSync(validate SyncValidator[T]) {
	for {
		elem := e.available.Front()
		if elem == nil {
			return
		}
		s := elem.Value.(*slot[T])
		e.available.Remove(elem)

		if !validate(s.handle) {
			e.destroyHandle(s.handle, "sync validation rejected idle handle", LevelInfo)
			continue
		}

		w := e.waiters.popFront()
		if w == nil {
			// Another event emptied the queue between the entry check
			// and here; put the slot back untouched and stop.
			e.insertAvailableSlot(s)
			return
		}
		e.inUse[s.token] = s.handle
		w.deliver(acquireResult[T]{handle: s.handle})
		return
	}
}

// dispenseAsync kicks off a validation for every currently available slot
// concurrently, since async completion order isn't guaranteed; whichever
// comes back valid first serves the head waiter, via validateDoneCmd.
func (e *engine[T]) dispenseAsync(validateAsync AsyncValidator[T]) {
	for {
		elem := e.available.Front()
		if elem == nil {
			return
		}
		s := elem.Value.(*slot[T])
		e.available.Remove(elem)
		e.underValidation[s.token] = s.handle

		token, handle := s.token, s.handle
		commands := e.commands
		validateAsync(handle, func(valid bool) {
			// done may fire synchronously on the caller's goroutine or
			// asynchronously on another one; route through a fresh
			// goroutine either way so a synchronous caller can never
			// dead-lock sending into the engine's own channel.
			go func() { commands <- &validateDoneCmd[T]{token: token, valid: valid} }()
		})
	}
}

// validateDoneCmd is the async-validate continuation.
type validateDoneCmd[T any] struct {
	token uint64
	valid bool
}

func (c *validateDoneCmd[T]) exec(e *engine[T]) {
	handle, ok := e.underValidation[c.token]
	if !ok {
		return // already resolved by an explicit Destroy or a duplicate signal
	}
	delete(e.underValidation, c.token)

	if !c.valid {
		e.destroyHandle(handle, "async validation rejected idle handle", LevelInfo)
		e.checkDrainQuiescence()
		e.dispense() // loop: another available slot may now be servable
		return
	}

	if w := e.waiters.popFront(); w != nil {
		e.inUse[c.token] = handle
		w.deliver(acquireResult[T]{handle: handle})
		return // stop: the one waiter this validation could serve is served
	}

	// Valid, but nobody was waiting for it by the time it resolved.
	e.insertAvailable(c.token, handle)
	e.checkDrainQuiescence()
}

// --- creation pipeline ---------------------------------------------------

func (e *engine[T]) beginCreate() {
	e.count++
	e.log.Log("creating new resource", LevelVerbose)
	commands := e.commands
	factory := e.factory
	go func() {
		handle, err := factory.Create(context.Background())
		commands <- &createDoneCmd[T]{handle: handle, err: err}
	}()
}

type createDoneCmd[T any] struct {
	handle T
	err    error
}

func (c *createDoneCmd[T]) exec(e *engine[T]) {
	if c.err != nil {
		e.count--
		if e.count < 0 {
			e.count = 0
		}
		e.log.Log("factory create failed", LevelWarn)
		if w := e.waiters.popFront(); w != nil {
			w.deliver(acquireResult[T]{err: &FactoryError{Err: c.err}})
		}
		e.deferDispense()
		return
	}

	token := e.newToken()
	if w := e.waiters.popFront(); w != nil {
		e.inUse[token] = c.handle
		w.deliver(acquireResult[T]{handle: c.handle})
		e.log.Log("dispatched newly created resource to waiter", LevelVerbose)
		return
	}
	e.insertAvailable(token, c.handle)
	e.log.Log("created resource has no waiter; added to available set", LevelVerbose)
	e.dispense()
}

// --- release / destroy ----------------------------------------------------

type releaseCmd[T any] struct {
	handle T
}

func (c *releaseCmd[T]) exec(e *engine[T]) {
	if _, ok := e.findAvailable(c.handle); ok {
		e.log.Log("double release of handle already in available set", LevelError)
		return
	}
	token, ok := e.findInUse(c.handle)
	if !ok {
		e.log.Log("release of handle not held by this pool (foreign release)", LevelError)
		return
	}
	delete(e.inUse, token)
	e.insertAvailable(token, c.handle)
	e.dispense()
	e.checkDrainQuiescence()
}

type destroyCmd[T any] struct {
	handle T
}

func (c *destroyCmd[T]) exec(e *engine[T]) {
	if token, ok := e.findAvailable(c.handle); ok {
		e.removeAvailableByToken(token)
	} else if token, ok := e.findInUse(c.handle); ok {
		delete(e.inUse, token)
	} else if token, ok := e.findUnderValidation(c.handle); ok {
		delete(e.underValidation, token)
	} else {
		e.log.Log("destroy of handle not held by this pool (foreign destroy)", LevelError)
		return
	}
	e.destroyHandle(c.handle, "destroyed handle on explicit request", LevelInfo)
	e.dispense()
	e.checkDrainQuiescence()
}
