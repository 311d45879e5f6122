package cache

import (
	"github.com/jellydator/ttlcache/v3"
)

type entry[V any] struct {
	key   string
	value V
	state *policyState
}

// ttlStore is the keyed store behind a Cache.
//
// Expiration is tracked by the entries themselves, so ttlcache runs without a TTL and never
// touches on hit. It provides the atomic insert-if-absent, get-and-delete and the optional
// capacity bound.
type ttlStore[V any] struct {
	cache *ttlcache.Cache[string, *entry[V]]
}

func (s *ttlStore[V]) get(key string) (*entry[V], bool) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Returns the stored entry and whether e was the one inserted
func (s *ttlStore[V]) insertIfAbsent(key string, e *entry[V]) (*entry[V], bool) {
	item, existed := s.cache.GetOrSet(key, e)
	return item.Value(), !existed
}

func (s *ttlStore[V]) remove(key string) (*entry[V], bool) {
	item, ok := s.cache.GetAndDelete(key)
	if !ok {
		return nil, false
	}
	return item.Value(), true
}

// Delete key only if it still holds e.
//
// Not atomic on its own: callers must hold the population slot for key.
func (s *ttlStore[V]) removeIfSame(key string, e *entry[V]) bool {
	current, ok := s.get(key)
	if !ok || current != e {
		return false
	}
	s.cache.Delete(key)
	return true
}

func (s *ttlStore[V]) entries() []*entry[V] {
	items := s.cache.Items()
	entries := make([]*entry[V], 0, len(items))
	for _, item := range items {
		entries = append(entries, item.Value())
	}
	return entries
}

func (s *ttlStore[V]) len() int {
	return s.cache.Len()
}

func (s *ttlStore[V]) clear() {
	s.cache.DeleteAll()
}

func newTTLStore[V any](capacity uint64) *ttlStore[V] {
	options := []ttlcache.Option[string, *entry[V]]{
		ttlcache.WithDisableTouchOnHit[string, *entry[V]](),
	}
	if capacity > 0 {
		options = append(options, ttlcache.WithCapacity[string, *entry[V]](capacity))
	}
	return &ttlStore[V]{cache: ttlcache.New[string, *entry[V]](options...)}
}
