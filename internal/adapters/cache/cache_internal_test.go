package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Amund211/warmstart/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestPopulateRace(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	policy, err := NewAbsolutePolicy(10 * time.Second)
	require.NoError(t, err)

	newRacingCache := func(t *testing.T, storedAt time.Time) *Cache[int, string] {
		t.Helper()

		var c *Cache[int, string]
		c, err := New(strconv.Itoa, func(ctx context.Context, key int) (string, error) {
			// Another writer stores an entry while the factory runs
			c.store.insertIfAbsent(strconv.Itoa(key), &entry[string]{
				key:   strconv.Itoa(key),
				value: "theirs",
				state: policy.start(storedAt),
			})
			return "ours", nil
		}, policy, WithClock(clock))
		require.NoError(t, err)
		return c
	}

	t.Run("a fresh entry stored first is adopted", func(t *testing.T) {
		t.Parallel()

		c := newRacingCache(t, now)

		value, err := c.GetOrAdd(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "theirs", value)
		require.Equal(t, 1, c.Len())
	})

	t.Run("a stale entry stored first is a conflict", func(t *testing.T) {
		t.Parallel()

		c := newRacingCache(t, now.Add(-time.Minute))

		_, err := c.GetOrAdd(t.Context(), 1)
		require.ErrorIs(t, err, domain.ErrCacheInsertionConflict)
	})
}

func TestIsNil(t *testing.T) {
	t.Parallel()

	var nilPointer *int
	var nilMap map[string]int
	var nilFunc func()
	var nilInterface error

	require.True(t, isNil(nil))
	require.True(t, isNil(nilPointer))
	require.True(t, isNil(nilMap))
	require.True(t, isNil(nilFunc))
	require.True(t, isNil(nilInterface))

	require.False(t, isNil(0))
	require.False(t, isNil(""))
	require.False(t, isNil(map[string]int{}))
}
