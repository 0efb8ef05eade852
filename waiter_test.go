package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaiterQueue_FIFOOrder(t *testing.T) {
	q := newWaiterQueue[int]()

	w1 := &waiter[int]{result: make(chan acquireResult[int], 1)}
	w2 := &waiter[int]{result: make(chan acquireResult[int], 1)}
	w3 := &waiter[int]{result: make(chan acquireResult[int], 1)}

	q.push(w1)
	q.push(w2)
	q.push(w3)

	require.Equal(t, 3, q.len())
	require.Same(t, w1, q.popFront())
	require.Same(t, w2, q.popFront())
	require.Same(t, w3, q.popFront())
	require.Nil(t, q.popFront())
}

func TestWaiterQueue_RemoveMidQueuePreservesOrder(t *testing.T) {
	q := newWaiterQueue[int]()
	w1 := &waiter[int]{result: make(chan acquireResult[int], 1)}
	w2 := &waiter[int]{result: make(chan acquireResult[int], 1)}
	w3 := &waiter[int]{result: make(chan acquireResult[int], 1)}
	q.push(w1)
	q.push(w2)
	q.push(w3)

	q.remove(w2)

	require.Equal(t, 2, q.len())
	require.Same(t, w1, q.popFront())
	require.Same(t, w3, q.popFront())
}

func TestWaiter_DeliverIsOneShot(t *testing.T) {
	w := &waiter[int]{result: make(chan acquireResult[int], 1)}

	w.deliver(acquireResult[int]{handle: 7})
	w.deliver(acquireResult[int]{handle: 9}) // must be ignored: one-shot sink

	res := <-w.result
	require.Equal(t, 7, res.handle)
	require.True(t, w.fulfilled)

	select {
	case <-w.result:
		t.Fatal("second deliver must not have sent a second value")
	default:
	}
}
