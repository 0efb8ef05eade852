package pool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pool "github.com/ansrivas/respool"
)

type resource struct {
	ID    int
	Count int
}

func syncAlwaysValid[T any]() pool.Validator[T] {
	return pool.SyncValidator[T](func(T) bool { return true })
}

func TestPool(t *testing.T) {
	t.Parallel()

	t.Run("When the pool is at max capacity, a second acquire waits and receives the released handle", func(t *testing.T) {
		t.Parallel()
		var nextID int64
		p, err := pool.New(pool.Config[resource]{
			Min: 0,
			Max: 1,
			Factory: pool.Factory[resource]{
				Create: func(ctx context.Context) (resource, error) {
					return resource{ID: int(atomic.AddInt64(&nextID, 1))}, nil
				},
				Destroy: func(resource) {},
				Check:   syncAlwaysValid[resource](),
			},
		})
		require.NoError(t, err)

		ctx := context.Background()
		h1, err := p.Acquire(ctx)
		require.NoError(t, err)

		type acquireOutcome struct {
			h   resource
			err error
		}
		outcomes := make(chan acquireOutcome, 1)
		go func() {
			h, err := p.Acquire(ctx)
			outcomes <- acquireOutcome{h, err}
		}()

		require.Eventually(t, func() bool { return p.Waiting() == 1 }, time.Second, 2*time.Millisecond)

		p.Release(h1)

		select {
		case out := <-outcomes:
			require.NoError(t, out.err)
			require.Equal(t, h1, out.h)
		case <-time.After(time.Second):
			t.Fatal("pending acquire never completed")
		}

		stats := p.Stats()
		require.Equal(t, 1, stats.Size)
		require.Equal(t, 0, stats.Available)
		require.Equal(t, 1, stats.Using)
	})

	t.Run("Explicit destroys run in call order, not release order", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		var mu sync.Mutex
		var destroyedOrder []int
		var nextID int64

		p, err := pool.New(pool.Config[resource]{
			Min: 0,
			Max: 2,
			Factory: pool.Factory[resource]{
				Create: func(ctx context.Context) (resource, error) {
					return resource{ID: int(atomic.AddInt64(&nextID, 1))}, nil
				},
				Destroy: func(r resource) {
					mu.Lock()
					destroyedOrder = append(destroyedOrder, r.ID)
					mu.Unlock()
				},
				Check: syncAlwaysValid[resource](),
			},
		})
		require.NoError(t, err)

		g1, err := p.Acquire(ctx)
		require.NoError(t, err)
		g2, err := p.Acquire(ctx)
		require.NoError(t, err)

		p.Destroy(g2)
		p.Destroy(g1)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(destroyedOrder) == 2
		}, time.Second, 2*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, []int{g2.ID, g1.ID}, destroyedOrder)
	})

	t.Run("When creation fails repeatedly, each waiting acquire gets the corresponding error until creation succeeds", func(t *testing.T) {
		t.Parallel()
		var calls int64
		p, err := pool.New(pool.Config[resource]{
			Min: 0,
			Max: 1,
			Factory: pool.Factory[resource]{
				Create: func(ctx context.Context) (resource, error) {
					n := atomic.AddInt64(&calls, 1)
					if n <= 5 {
						return resource{}, fmt.Errorf("Error %d occurred.", n)
					}
					return resource{ID: 6}, nil
				},
				Destroy: func(resource) {},
				Check:   syncAlwaysValid[resource](),
			},
		})
		require.NoError(t, err)

		ctx := context.Background()
		for i := int64(1); i <= 5; i++ {
			_, err := p.Acquire(ctx)
			require.Error(t, err)
			var factoryErr *pool.FactoryError
			require.True(t, errors.As(err, &factoryErr))
			require.Contains(t, factoryErr.Error(), fmt.Sprintf("Error %d occurred.", i))
		}

		h, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, resource{ID: 6}, h)
		require.Equal(t, 0, p.Waiting())
	})

	t.Run("When validation rejects a handle, it is destroyed and replaced before the waiter is served", func(t *testing.T) {
		t.Parallel()
		var nextCount int64
		var destroyedCount int64
		p, err := pool.New(pool.Config[resource]{
			Min: 0,
			Max: 2,
			Factory: pool.Factory[resource]{
				Create: func(ctx context.Context) (resource, error) {
					c := atomic.AddInt64(&nextCount, 1) - 1
					return resource{Count: int(c)}, nil
				},
				Destroy: func(resource) { atomic.AddInt64(&destroyedCount, 1) },
				Check:   pool.SyncValidator[resource](func(r resource) bool { return r.Count > 0 }),
			},
		})
		require.NoError(t, err)

		ctx := context.Background()
		h1, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, h1.Count)
		p.Release(h1)

		h2, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, h2.Count)
		p.Release(h2)

		require.Equal(t, int64(1), atomic.LoadInt64(&destroyedCount))
		stats := p.Stats()
		require.Equal(t, 1, stats.Available)
	})

	t.Run("Drain completes only once every acquired handle has been released, and a later acquire fails", func(t *testing.T) {
		t.Parallel()
		p, err := pool.New(pool.Config[resource]{
			Min: 0,
			Max: 2,
			Factory: pool.Factory[resource]{
				Create:  func(ctx context.Context) (resource, error) { return resource{}, nil },
				Destroy: func(resource) {},
				Check:   syncAlwaysValid[resource](),
			},
		})
		require.NoError(t, err)

		ctx := context.Background()

		// Acquire both slots up front so Drain is guaranteed to observe a
		// non-quiescent pool, rather than racing the acquires themselves.
		handles := make([]resource, 2)
		for i := range handles {
			h, err := p.Acquire(ctx)
			require.NoError(t, err)
			handles[i] = h
		}

		var released int64
		var wg sync.WaitGroup
		for _, h := range handles {
			wg.Add(1)
			go func(h resource) {
				defer wg.Done()
				time.Sleep(20 * time.Millisecond)
				p.Release(h)
				atomic.AddInt64(&released, 1)
			}(h)
		}

		drainErr := make(chan error, 1)
		go func() {
			drainErr <- p.Drain(context.Background())
		}()

		select {
		case err := <-drainErr:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("drain never completed")
		}

		wg.Wait()
		require.Equal(t, int64(2), atomic.LoadInt64(&released))

		stats := p.Stats()
		require.Equal(t, 0, stats.Waiting)
		require.Equal(t, 0, stats.Using)
		require.Equal(t, stats.Size, stats.Available)

		_, err = p.Acquire(context.Background())
		require.ErrorIs(t, err, pool.ErrDraining)
	})

	t.Run("Double release and foreign release are logged programmer errors, not state changes", func(t *testing.T) {
		t.Parallel()
		p, err := pool.New(pool.Config[resource]{
			Min: 0,
			Max: 1,
			Factory: pool.Factory[resource]{
				Create:  func(ctx context.Context) (resource, error) { return resource{ID: 1}, nil },
				Destroy: func(resource) {},
				Check:   syncAlwaysValid[resource](),
			},
		})
		require.NoError(t, err)

		ctx := context.Background()
		h, err := p.Acquire(ctx)
		require.NoError(t, err)

		p.Release(h)
		require.Equal(t, 1, p.Available())
		require.Equal(t, 0, p.Using())

		p.Release(h) // double release: no-op besides the logged error
		require.Eventually(t, func() bool {
			stats := p.Stats()
			return stats.Available == 1 && stats.Using == 0
		}, time.Second, 2*time.Millisecond)

		p.Release(resource{ID: 999}) // foreign release: no-op besides the logged error
		require.Eventually(t, func() bool {
			stats := p.Stats()
			return stats.Available == 1 && stats.Using == 0
		}, time.Second, 2*time.Millisecond)

		p.Destroy(resource{ID: 999}) // foreign destroy: no-op besides the logged error
		require.Eventually(t, func() bool {
			stats := p.Stats()
			return stats.Available == 1 && stats.Using == 0
		}, time.Second, 2*time.Millisecond)
	})
}
