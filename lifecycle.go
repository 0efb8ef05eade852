package pool

import "time"

// drainPollInterval is the bounded cadence at which a pending Drain
// re-checks quiescence, on top of the checks already run after release,
// destroy, reap, async-validation and destroyAllNow commands.
const drainPollInterval = 25 * time.Millisecond

type drainCmd[T any] struct {
	done chan struct{}
}

func (c *drainCmd[T]) exec(e *engine[T]) {
	e.draining = true
	e.drainWaiters = append(e.drainWaiters, c.done)
	e.checkDrainQuiescence()
	e.armDrainPoll()
}

type drainPollCmd[T any] struct{}

func (c *drainPollCmd[T]) exec(e *engine[T]) {
	e.drainPollArmed = false
	e.checkDrainQuiescence()
	e.armDrainPoll()
}

func (e *engine[T]) armDrainPoll() {
	if e.drainPollArmed || len(e.drainWaiters) == 0 {
		return
	}
	e.drainPollArmed = true
	commands := e.commands
	time.AfterFunc(drainPollInterval, func() {
		go func() { commands <- &drainPollCmd[T]{} }()
	})
}

// checkDrainQuiescence signals every pending Drain caller once the pool
// is quiescent: no waiters, no validations in flight, and every live
// resource sitting in available.
func (e *engine[T]) checkDrainQuiescence() {
	if len(e.drainWaiters) == 0 {
		return
	}
	if e.waiters.len() != 0 || len(e.underValidation) != 0 || e.available.Len() != e.count {
		return
	}
	for _, ch := range e.drainWaiters {
		close(ch)
	}
	e.drainWaiters = nil
}

// destroyAllNowCmd forcibly destroys every available resource without
// waiting for in-use ones to be returned. Handles mid-validation are left
// alone; they finish validating and are then subject to ordinary handling.
type destroyAllNowCmd[T any] struct {
	done chan struct{}
}

func (c *destroyAllNowCmd[T]) exec(e *engine[T]) {
	e.disarmReaper()

	var snapshot []*slot[T]
	for elem := e.available.Front(); elem != nil; elem = elem.Next() {
		snapshot = append(snapshot, elem.Value.(*slot[T]))
	}
	e.available.Init()

	for _, s := range snapshot {
		e.destroyHandle(s.handle, "destroyAllNow: destroyed available handle", LevelWarn)
	}
	e.checkDrainQuiescence()
	close(c.done)
}
