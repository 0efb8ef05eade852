package pool

import "container/list"

// acquireResult is the one-shot outcome delivered to a waiter: either a
// handle or an error, never both.
type acquireResult[T any] struct {
	handle T
	err    error
}

// waiter is a pending acquire request. It is fulfilled exactly once,
// either by the dispenser or by a cancellation triggered by the caller's
// context expiring.
type waiter[T any] struct {
	result    chan acquireResult[T] // buffered, capacity 1
	elem      *list.Element         // this waiter's node in the queue, for O(1) removal
	fulfilled bool
}

func (w *waiter[T]) deliver(res acquireResult[T]) {
	if w.fulfilled {
		return
	}
	w.fulfilled = true
	w.result <- res
}

// waiterQueue is a strict FIFO of pending waiters (spec invariant: waiters
// are served in enqueue order).
type waiterQueue[T any] struct {
	l *list.List
}

func newWaiterQueue[T any]() *waiterQueue[T] {
	return &waiterQueue[T]{l: list.New()}
}

func (q *waiterQueue[T]) push(w *waiter[T]) {
	w.elem = q.l.PushBack(w)
}

func (q *waiterQueue[T]) popFront() *waiter[T] {
	elem := q.l.Front()
	if elem == nil {
		return nil
	}
	q.l.Remove(elem)
	w := elem.Value.(*waiter[T])
	w.elem = nil
	return w
}

func (q *waiterQueue[T]) remove(w *waiter[T]) {
	if w.elem == nil {
		return
	}
	q.l.Remove(w.elem)
	w.elem = nil
}

func (q *waiterQueue[T]) len() int { return q.l.Len() }

// acquireCmd enqueues a new waiter, or fails it immediately if the pool is
// draining.
type acquireCmd[T any] struct {
	w *waiter[T]
}

func (c *acquireCmd[T]) exec(e *engine[T]) {
	if e.draining {
		c.w.deliver(acquireResult[T]{err: ErrDraining})
		return
	}
	e.waiters.push(c.w)
	e.log.Log("acquire enqueued", LevelVerbose)
	e.dispense()
}

// cancelWaiterCmd removes a waiter whose caller-side context expired
// before it was fulfilled. If the dispenser already fulfilled it in the
// interim (a benign race against the buffered result channel), this is a
// no-op.
type cancelWaiterCmd[T any] struct {
	w    *waiter[T]
	done chan struct{}
}

func (c *cancelWaiterCmd[T]) exec(e *engine[T]) {
	if !c.w.fulfilled {
		e.waiters.remove(c.w)
		c.w.deliver(acquireResult[T]{err: ErrAcquireTimeout})
	}
	close(c.done)
}
