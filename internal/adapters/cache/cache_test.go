package cache_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Amund211/warmstart/internal/adapters/cache"
	"github.com/Amund211/warmstart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory producing "<key>#<n>" where n counts the invocations
type countingFactory struct {
	calls atomic.Int64
}

func (f *countingFactory) create(ctx context.Context, key int) (string, error) {
	n := f.calls.Add(1)
	return fmt.Sprintf("%d#%d", key, n), nil
}

func intKey(key int) string {
	return strconv.Itoa(key)
}

func newTestCache(t *testing.T, sliding bool, clock *fakeClock, opts ...cache.Option) (*cache.Cache[int, string], *countingFactory) {
	t.Helper()

	factory := &countingFactory{}
	opts = append([]cache.Option{cache.WithExpiration(10 * time.Second), cache.WithClock(clock.Now)}, opts...)

	var c *cache.Cache[int, string]
	var err error
	if sliding {
		c, err = cache.NewSlidingCache(intKey, factory.create, opts...)
	} else {
		c, err = cache.NewAbsoluteCache(intKey, factory.create, opts...)
	}
	require.NoError(t, err)
	return c, factory
}

func TestNew(t *testing.T) {
	t.Parallel()

	policy, err := cache.NewAbsolutePolicy(time.Minute)
	require.NoError(t, err)
	factory := &countingFactory{}

	t.Run("nil key function", func(t *testing.T) {
		t.Parallel()
		_, err := cache.New[int, string](nil, factory.create, policy)
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("nil factory", func(t *testing.T) {
		t.Parallel()
		_, err := cache.New[int, string](intKey, nil, policy)
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("zero policy", func(t *testing.T) {
		t.Parallel()
		_, err := cache.New(intKey, factory.create, cache.Policy{})
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("non-positive expiration", func(t *testing.T) {
		t.Parallel()
		for _, d := range []time.Duration{0, -time.Minute} {
			_, err := cache.NewAbsoluteCache(intKey, factory.create, cache.WithExpiration(d))
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

			_, err = cache.NewSlidingCache(intKey, factory.create, cache.WithExpiration(d))
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		}
	})

	t.Run("invalid options", func(t *testing.T) {
		t.Parallel()
		_, err := cache.New(intKey, factory.create, policy, cache.WithName(""))
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

		_, err = cache.New(intKey, factory.create, policy, cache.WithClock(nil))
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		absolute, err := cache.NewAbsoluteCache(intKey, factory.create)
		require.NoError(t, err)
		require.False(t, absolute.Policy().IsSliding())
		require.Equal(t, cache.DefaultExpiration, absolute.Policy().Duration())
		require.Equal(t, "Cache[string]", absolute.Name())

		sliding, err := cache.NewSlidingCache(intKey, factory.create, cache.WithName("hosts"))
		require.NoError(t, err)
		require.True(t, sliding.Policy().IsSliding())
		require.Equal(t, cache.DefaultExpiration, sliding.Policy().Duration())
		require.Equal(t, "hosts", sliding.Name())
	})
}

func TestGetOrAdd(t *testing.T) {
	t.Parallel()

	t.Run("hit returns the stored value", func(t *testing.T) {
		t.Parallel()

		c, factory := newTestCache(t, false, newFakeClock())

		value, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "1#1", value)

		value, err = c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "1#1", value)

		value, err = c.GetOrAdd(t.Context(), 2)
		require.NoError(t, err)
		require.Equal(t, "2#2", value)

		require.EqualValues(t, 2, factory.calls.Load())
		require.Equal(t, 2, c.Len())
	})

	t.Run("absolute entries expire at insertion plus offset", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		c, factory := newTestCache(t, false, clock)

		_, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)

		clock.Advance(9 * time.Second)
		value, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "1#1", value)

		clock.Advance(time.Second)
		value, err = c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "1#2", value)
		require.EqualValues(t, 2, factory.calls.Load())
	})

	t.Run("sliding entries survive while accessed", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		c, factory := newTestCache(t, true, clock)

		_, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)

		for range 5 {
			clock.Advance(8 * time.Second)
			value, err := c.GetOrAdd(t.Context(), 1)
			require.NoError(t, err)
			require.Equal(t, "1#1", value)
		}
		require.EqualValues(t, 1, factory.calls.Load())
	})

	t.Run("sliding entries expire after an idle period", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		c, factory := newTestCache(t, true, clock)

		_, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)

		clock.Advance(10 * time.Second)
		value, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "1#2", value)
		require.EqualValues(t, 2, factory.calls.Load())
		require.Equal(t, 1, c.Len())
	})

	t.Run("factory errors are not cached", func(t *testing.T) {
		t.Parallel()

		factoryErr := errors.New("backend unavailable")
		calls := 0
		c, err := cache.NewAbsoluteCache(intKey, func(ctx context.Context, key int) (string, error) {
			calls++
			if calls == 1 {
				return "", factoryErr
			}
			return "ok", nil
		})
		require.NoError(t, err)

		_, err = c.GetOrAdd(t.Context(), 1)
		require.ErrorIs(t, err, factoryErr)
		require.ErrorContains(t, err, "failed to create cache entry for '1'")
		require.Equal(t, 0, c.Len())

		value, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "ok", value)
		require.Equal(t, 2, calls)
	})

	t.Run("nil keys are rejected", func(t *testing.T) {
		t.Parallel()

		c, err := cache.NewAbsoluteCache(
			func(key *string) string { return *key },
			func(ctx context.Context, key *string) (int, error) { return len(*key), nil },
		)
		require.NoError(t, err)

		_, err = c.GetOrAdd(t.Context(), nil)
		require.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, err = c.Contains(nil)
		require.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, _, err = c.Remove(nil)
		require.ErrorIs(t, err, domain.ErrInvalidArgument)

		key := "four"
		value, err := c.GetOrAdd(t.Context(), &key)
		require.NoError(t, err)
		require.Equal(t, 4, value)
	})

	t.Run("keys formatting equally share an entry", func(t *testing.T) {
		t.Parallel()

		c, err := cache.NewAbsoluteCache(
			func(key int) string { return strconv.Itoa(key % 10) },
			(&countingFactory{}).create,
		)
		require.NoError(t, err)

		first, err := c.GetOrAdd(t.Context(), 3)
		require.NoError(t, err)
		second, err := c.GetOrAdd(t.Context(), 13)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})
}

func TestGetOrAddConcurrency(t *testing.T) {
	t.Parallel()

	t.Run("concurrent misses for a key run the factory once", func(t *testing.T) {
		t.Parallel()

		for attempt := range 20 {
			t.Run(fmt.Sprintf("attempt #%d", attempt), func(t *testing.T) {
				t.Parallel()

				var calls atomic.Int64
				release := make(chan struct{})
				c, err := cache.NewAbsoluteCache(intKey, func(ctx context.Context, key int) (string, error) {
					calls.Add(1)
					<-release
					return "value", nil
				})
				require.NoError(t, err)

				const goroutines = 32
				results := make([]string, goroutines)
				started := sync.WaitGroup{}
				wg := sync.WaitGroup{}
				started.Add(goroutines)
				for i := range goroutines {
					wg.Go(func() {
						started.Done()
						value, err := c.GetOrAdd(t.Context(), 7)
						assert.NoError(t, err)
						results[i] = value
					})
				}
				started.Wait()
				close(release)
				wg.Wait()

				require.EqualValues(t, 1, calls.Load())
				for _, value := range results {
					require.Equal(t, "value", value)
				}
			})
		}
	})

	t.Run("different keys populate independently", func(t *testing.T) {
		t.Parallel()

		firstStarted := make(chan struct{})
		releaseFirst := make(chan struct{})
		c, err := cache.NewAbsoluteCache(intKey, func(ctx context.Context, key int) (string, error) {
			if key == 1 {
				close(firstStarted)
				<-releaseFirst
			}
			return intKey(key), nil
		})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			value, err := c.GetOrAdd(context.Background(), 1)
			assert.NoError(t, err)
			assert.Equal(t, "1", value)
		}()

		<-firstStarted
		// Key 2 must not wait for the slow population of key 1
		value, err := c.GetOrAdd(t.Context(), 2)
		require.NoError(t, err)
		require.Equal(t, "2", value)

		close(releaseFirst)
		<-done
	})

	t.Run("a cancelled caller does not fail the others", func(t *testing.T) {
		t.Parallel()

		started := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int64
		c, err := cache.NewAbsoluteCache(intKey, func(ctx context.Context, key int) (string, error) {
			calls.Add(1)
			close(started)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-release:
				return "value", nil
			}
		})
		require.NoError(t, err)

		firstCtx, cancelFirst := context.WithCancel(t.Context())
		firstDone := make(chan error, 1)
		go func() {
			_, err := c.GetOrAdd(firstCtx, 1)
			firstDone <- err
		}()
		<-started

		secondDone := make(chan string, 1)
		go func() {
			value, err := c.GetOrAdd(context.Background(), 1)
			assert.NoError(t, err)
			secondDone <- value
		}()

		cancelFirst()
		err = <-firstDone
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorContains(t, err, "stopped waiting for cache entry for '1'")

		close(release)
		require.Equal(t, "value", <-secondDone)
		require.EqualValues(t, 1, calls.Load())

		// The population finished for everyone, including the caller that left
		found, err := c.Contains(1)
		require.NoError(t, err)
		require.True(t, found)
	})

	t.Run("a waiter leaves on its own deadline", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		c, err := cache.NewAbsoluteCache(intKey, func(ctx context.Context, key int) (string, error) {
			<-release
			return "value", nil
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err = c.GetOrAdd(ctx, 1)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("a panicking factory is reported as an error", func(t *testing.T) {
		t.Parallel()

		c, err := cache.NewAbsoluteCache(intKey, func(ctx context.Context, key int) (string, error) {
			panic("resolver exploded")
		})
		require.NoError(t, err)

		_, err = c.GetOrAdd(t.Context(), 1)
		require.ErrorContains(t, err, "factory panicked: resolver exploded")
		require.Equal(t, 0, c.Len())
	})

	t.Run("many keys under contention", func(t *testing.T) {
		t.Parallel()

		factory := &countingFactory{}
		c, err := cache.NewSlidingCache(intKey, factory.create)
		require.NoError(t, err)

		wg := sync.WaitGroup{}
		for i := range 200 {
			wg.Go(func() {
				key := i % 10
				value, err := c.GetOrAdd(context.Background(), key)
				assert.NoError(t, err)
				assert.Regexp(t, fmt.Sprintf("^%d#", key), value)
			})
		}
		wg.Wait()

		require.Equal(t, 10, c.Len())
		require.EqualValues(t, 10, factory.calls.Load())
	})
}

func TestContains(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, _ := newTestCache(t, true, clock)

	found, err := c.Contains(1)
	require.NoError(t, err)
	require.False(t, found)

	_, err = c.GetOrAdd(t.Context(), 1)
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	found, err = c.Contains(1)
	require.NoError(t, err)
	require.True(t, found)

	// The probe above must not have renewed the entry
	clock.Advance(4 * time.Second)
	found, err = c.Contains(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	t.Run("removed entries are repopulated", func(t *testing.T) {
		t.Parallel()

		c, factory := newTestCache(t, false, newFakeClock())

		_, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)

		value, removed, err := c.Remove(1)
		require.NoError(t, err)
		require.True(t, removed)
		require.Equal(t, "1#1", value)
		require.Equal(t, 0, c.Len())

		value, err = c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "1#2", value)
		require.EqualValues(t, 2, factory.calls.Load())
	})

	t.Run("missing and expired entries are reported as absent", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		c, _ := newTestCache(t, false, clock)

		_, removed, err := c.Remove(1)
		require.NoError(t, err)
		require.False(t, removed)

		_, err = c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		clock.Advance(time.Minute)

		_, removed, err = c.Remove(1)
		require.NoError(t, err)
		require.False(t, removed)
		require.Equal(t, 0, c.Len())
	})
}

func TestSweepAndClear(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, _ := newTestCache(t, false, clock)

	_, err := c.GetOrAdd(t.Context(), 1)
	require.NoError(t, err)
	clock.Advance(6 * time.Second)
	_, err = c.GetOrAdd(t.Context(), 2)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)

	require.Equal(t, 2, c.Len())
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.Len())

	found, err := c.Contains(2)
	require.NoError(t, err)
	require.True(t, found)

	c.Clear()
	require.Equal(t, 0, c.Len())
}

func TestCapacity(t *testing.T) {
	t.Parallel()

	c, factory := newTestCache(t, false, newFakeClock(), cache.WithCapacity(2))

	for _, key := range []int{1, 2, 3} {
		_, err := c.GetOrAdd(t.Context(), key)
		require.NoError(t, err)
	}
	require.Equal(t, 2, c.Len())

	found, err := c.Contains(1)
	require.NoError(t, err)
	require.False(t, found)

	value, err := c.GetOrAdd(t.Context(), 3)
	require.NoError(t, err)
	require.Equal(t, "3#3", value)
	require.EqualValues(t, 3, factory.calls.Load())
}
