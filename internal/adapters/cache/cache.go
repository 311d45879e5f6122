package cache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/Amund211/warmstart/internal/domain"
	"github.com/Amund211/warmstart/internal/logging"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes the result of an expensive computation per key.
//
// Keys are formatted to strings by keyFunc, and missing or stale entries are produced by
// itemFactory. Hits never take a lock. Misses for the same formatted key are collapsed so the
// factory runs once per population, while misses for different keys populate in parallel.
//
// The factory must tolerate running speculatively: when another writer stored an entry for
// the same key first, the freshly created value is discarded and the stored one is returned.
type Cache[K any, V any] struct {
	name        string
	keyFunc     func(K) string
	itemFactory func(context.Context, K) (V, error)
	policy      Policy
	now         func() time.Time
	logger      *slog.Logger

	store *ttlStore[V]
	// Guards compound store mutations (stale-entry replacement, sweeping)
	storeLock sync.Mutex
	flights   singleflight.Group
}

func New[K any, V any](keyFunc func(K) string, itemFactory func(context.Context, K) (V, error), policy Policy, opts ...Option) (*Cache[K, V], error) {
	if keyFunc == nil {
		return nil, fmt.Errorf("%w: key function must not be nil", domain.ErrInvalidConfiguration)
	}
	if itemFactory == nil {
		return nil, fmt.Errorf("%w: item factory must not be nil", domain.ErrInvalidConfiguration)
	}
	if !policy.valid() {
		return nil, fmt.Errorf("%w: expiration policy is not initialized", domain.ErrInvalidConfiguration)
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	name := o.name
	if name == "" {
		name = fmt.Sprintf("Cache[%s]", reflect.TypeFor[V]().String())
	}

	c := &Cache[K, V]{
		name:        name,
		keyFunc:     keyFunc,
		itemFactory: itemFactory,
		policy:      policy,
		now:         o.now,
		logger:      o.logger,
		store:       newTTLStore[V](o.capacity),
	}

	if c.logger != nil {
		c.store.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *entry[V]]) {
			if reason == ttlcache.EvictionReasonCapacityReached {
				c.logger.DebugContext(ctx, "Evicted cache entry", "cache", c.name, "key", item.Key(), "reason", "capacity")
			}
		})
	}

	return c, nil
}

// Create a cache whose entries expire a fixed duration after insertion (default 30 minutes)
func NewAbsoluteCache[K any, V any](keyFunc func(K) string, itemFactory func(context.Context, K) (V, error), opts ...Option) (*Cache[K, V], error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	policy, err := NewAbsolutePolicy(o.expiration)
	if err != nil {
		return nil, err
	}
	return New(keyFunc, itemFactory, policy, opts...)
}

// Create a cache whose entries expire after being idle for a duration (default 30 minutes)
func NewSlidingCache[K any, V any](keyFunc func(K) string, itemFactory func(context.Context, K) (V, error), opts ...Option) (*Cache[K, V], error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	policy, err := NewSlidingPolicy(o.expiration)
	if err != nil {
		return nil, err
	}
	return New(keyFunc, itemFactory, policy, opts...)
}

func (c *Cache[K, V]) Name() string {
	return c.name
}

func (c *Cache[K, V]) Policy() Policy {
	return c.policy
}

// Get the value for key, creating and storing it on a miss
func (c *Cache[K, V]) GetOrAdd(ctx context.Context, key K) (V, error) {
	var empty V

	formatted, err := c.formatKey(key)
	if err != nil {
		return empty, err
	}

	if e, ok := c.store.get(formatted); ok && e.state.touch(c.now()) {
		c.loggerFor(ctx).DebugContext(ctx, "Getting cache entry", "cache", c.name, "result", "hit")
		return e.value, nil
	}

	// The population outlives any single waiter: it keeps ctx values but not its cancellation
	populateCtx := context.WithoutCancel(ctx)
	flight := c.flights.DoChan(formatted, func() (any, error) {
		return c.populate(populateCtx, key, formatted)
	})

	var result singleflight.Result
	select {
	case result = <-flight:
	case <-ctx.Done():
		return empty, fmt.Errorf("stopped waiting for cache entry for '%s': %w", formatted, ctx.Err())
	}
	if result.Err != nil {
		return empty, result.Err
	}
	shared := result.Shared

	stored, ok := result.Val.(*entry[V])
	if !ok {
		panic(fmt.Sprintf("logic error: unexpected population result %T", result.Val))
	}

	c.loggerFor(ctx).DebugContext(
		ctx,
		"Getting cache entry",
		"cache", c.name,
		"result", "miss",
		"shared", shared,
		"expiresAt", stored.state.expiresAt(),
	)
	return stored.value, nil
}

// Runs at most once at a time per formatted key.
//
// A panicking factory is turned into an error: the flight runs on its own goroutine, where a
// panic could not be recovered by the callers.
func (c *Cache[K, V]) populate(ctx context.Context, key K, formatted string) (stored *entry[V], err error) {
	defer func() {
		if r := recover(); r != nil {
			stored = nil
			err = fmt.Errorf("failed to create cache entry for '%s': factory panicked: %v", formatted, r)
		}
	}()

	if e, ok := c.store.get(formatted); ok {
		if e.state.touch(c.now()) {
			return e, nil
		}
		c.storeLock.Lock()
		c.store.removeIfSame(formatted, e)
		c.storeLock.Unlock()
	}

	value, err := c.itemFactory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache entry for '%s': %w", formatted, err)
	}

	created := &entry[V]{
		key:   formatted,
		value: value,
		state: c.policy.start(c.now()),
	}

	c.storeLock.Lock()
	stored, inserted := c.store.insertIfAbsent(formatted, created)
	c.storeLock.Unlock()
	if inserted {
		return created, nil
	}

	// Someone else stored an entry for this key in the meantime. Keep theirs.
	if !stored.state.touch(c.now()) {
		return nil, fmt.Errorf("%w: %s already contains an entry for '%s'", domain.ErrCacheInsertionConflict, c.name, formatted)
	}
	return stored, nil
}

// Report whether an unexpired entry exists for key.
//
// Probing is not a use of the entry: sliding entries are not renewed.
func (c *Cache[K, V]) Contains(key K) (bool, error) {
	formatted, err := c.formatKey(key)
	if err != nil {
		return false, err
	}

	e, ok := c.store.get(formatted)
	if !ok {
		return false, nil
	}
	return !e.state.expired(c.now()), nil
}

// Remove the entry for key, returning its value if it was present and unexpired
func (c *Cache[K, V]) Remove(key K) (V, bool, error) {
	var empty V

	formatted, err := c.formatKey(key)
	if err != nil {
		return empty, false, err
	}

	e, ok := c.store.remove(formatted)
	if !ok || e.state.expired(c.now()) {
		return empty, false, nil
	}
	return e.value, true, nil
}

// Drop every expired entry, returning how many were dropped
func (c *Cache[K, V]) Sweep() int {
	now := c.now()

	c.storeLock.Lock()
	defer c.storeLock.Unlock()

	removed := 0
	for _, e := range c.store.entries() {
		if e.state.expired(now) && c.store.removeIfSame(e.key, e) {
			removed++
		}
	}
	return removed
}

// Number of stored entries, including expired entries that have not been dropped yet
func (c *Cache[K, V]) Len() int {
	return c.store.len()
}

func (c *Cache[K, V]) Clear() {
	c.storeLock.Lock()
	defer c.storeLock.Unlock()

	c.store.clear()
}

func (c *Cache[K, V]) formatKey(key K) (string, error) {
	if isNil(key) {
		return "", fmt.Errorf("%w: %s key must not be nil", domain.ErrInvalidArgument, c.name)
	}
	return c.keyFunc(key), nil
}

func (c *Cache[K, V]) loggerFor(ctx context.Context) *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logging.FromContext(ctx)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}
