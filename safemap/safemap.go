package safemap

import (
	"fmt"
	"sort"
	"sync"
)

// SafeMap is a map guarded by a read/write mutex. Readers share the lock,
// writers (including Drain and GetOrCreate) hold it exclusively.
type SafeMap[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

func New[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		data: make(map[K]V),
	}
}

func (s *SafeMap[K, V]) Set(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k] = v
}

func (s *SafeMap[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[k]
	return val, ok
}

// GetOrCreate returns the value stored under k, calling create to build and
// store one when k is absent. create runs under the write lock, so concurrent
// callers for the same key always observe a single value.
func (s *SafeMap[K, V]) GetOrCreate(k K, create func() V) (V, bool) {
	s.mu.RLock()
	val, ok := s.data[k]
	s.mu.RUnlock()
	if ok {
		return val, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if val, ok = s.data[k]; ok {
		return val, false
	}
	val = create()
	s.data[k] = val
	return val, true
}

// Delete removes k and reports whether it was present.
func (s *SafeMap[K, V]) Delete(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[k]
	delete(s.data, k)
	return ok
}

func (s *SafeMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// SortedForEach visits entries ordered by the string form of their keys.
// Returning true from f stops the iteration.
func (s *SafeMap[K, V]) SortedForEach(f func(K, V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprintf("%v", keys[i]) < fmt.Sprintf("%v", keys[j])
	})

	for _, k := range keys {
		if f(k, s.data[k]) {
			break
		}
	}
}

// ForEach visits entries in map order while holding the read lock.
// f must not call back into the map's write methods.
func (s *SafeMap[K, V]) ForEach(f func(K, V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, val := range s.data {
		if f(key, val) {
			break
		}
	}
}

// Drain empties the map in a single swap and returns the previous contents.
func (s *SafeMap[K, V]) Drain() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.data
	s.data = make(map[K]V)
	return old
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := make([]V, 0, len(s.data))
	for _, val := range s.data {
		r = append(r, val)
	}
	return r
}
