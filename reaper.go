package pool

import "time"

// armReaper schedules a sweep after reapInterval, if one isn't already
// pending and there is something worth sweeping. Only one timer may be
// pending at a time.
func (e *engine[T]) armReaper() {
	if e.reapArmed || e.available.Len() == 0 {
		return
	}
	e.reapArmed = true
	commands := e.commands
	e.reapTimer = time.AfterFunc(e.reapInterval, func() {
		go func() { commands <- &reapTickCmd[T]{} }()
	})
}

func (e *engine[T]) disarmReaper() {
	if e.reapTimer != nil {
		e.reapTimer.Stop()
	}
	e.reapArmed = false
}

// reapTickCmd is the scheduled idle sweep.
type reapTickCmd[T any] struct{}

func (c *reapTickCmd[T]) exec(e *engine[T]) {
	e.reapArmed = false

	if !e.refreshIdle {
		if e.available.Len() > 0 {
			e.armReaper()
		}
		return
	}

	maxRemovable := e.count - e.min
	if maxRemovable > 0 {
		now := time.Now()
		removed := 0
		elem := e.available.Front()
		for elem != nil && removed < maxRemovable {
			next := elem.Next()
			s := elem.Value.(*slot[T])
			if !s.expiresAt.After(now) {
				e.available.Remove(elem)
				e.destroyHandle(s.handle, "reaped idle handle past timeout", LevelInfo)
				removed++
			}
			elem = next
		}
	}

	if e.available.Len() > 0 {
		e.armReaper()
	}
	e.checkDrainQuiescence()
}
