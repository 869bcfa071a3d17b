// Package state holds script state that outlives a single iteration.
//
// A Store belongs to one worker and is never touched concurrently, so it has no
// locking. A Shared value is the explicit opt-in for state visible to every
// worker; all access goes through its mutex.
package state

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Store is per-worker script state
type Store struct {
	values map[string]any
}

// NewStore creates an empty per-worker store
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the raw value for key
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key
func (s *Store) Set(key string, value any) {
	s.values[key] = value
}

// Delete removes key
func (s *Store) Delete(key string) {
	delete(s.values, key)
}

// Int returns key as an int, 0 when missing or not numeric
func (s *Store) Int(key string) int {
	n, _ := ToInt(s.values[key])
	return n
}

// Incr adds one to key and returns the previous value
func (s *Store) Incr(key string) int {
	prev := s.Int(key)
	s.values[key] = prev + 1
	return prev
}

// String returns key as a string, "" when missing
func (s *Store) String(key string) string {
	return ToString(s.values[key])
}

// Bool returns key as a bool, false when missing or not a bool
func (s *Store) Bool(key string) bool {
	b, _ := s.values[key].(bool)
	return b
}

// Keys returns the stored keys sorted
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a shallow copy of the store
func (s *Store) Map() map[string]any {
	m := make(map[string]any, len(s.values))
	for k, v := range s.values {
		m[k] = v
	}
	return m
}

// Replace swaps the whole content for values
func (s *Store) Replace(values map[string]any) {
	s.values = make(map[string]any, len(values))
	for k, v := range values {
		s.values[k] = v
	}
}

// Shared is script state visible to all workers.
// At most one writer holds the lock; readers only see committed values.
type Shared struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewShared creates an empty shared store
func NewShared() *Shared {
	return &Shared{values: make(map[string]any)}
}

// Get returns the committed value for key
func (s *Shared) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// String returns key as a string, "" when missing
func (s *Shared) String(key string) string {
	v, _ := s.Get(key)
	return ToString(v)
}

// Bool returns key as a bool
func (s *Shared) Bool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// Set commits value under key
func (s *Shared) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Update runs fn with exclusive access to the whole map.
// Use it for read-modify-write sequences that must not interleave.
func (s *Shared) Update(fn func(values map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.values)
}

// View runs fn with read access to the whole map. fn must not modify it.
func (s *Shared) View(fn func(values map[string]any)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.values)
}

// Snapshot returns a shallow copy of the committed values
func (s *Shared) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]any, len(s.values))
	for k, v := range s.values {
		m[k] = v
	}
	return m
}

// Apply commits every entry of diff in a single critical section.
// A nil value deletes the key.
func (s *Shared) Apply(diff map[string]any) {
	if len(diff) == 0 {
		return
	}
	s.Update(func(values map[string]any) {
		for k, v := range diff {
			if v == nil {
				delete(values, k)
				continue
			}
			values[k] = v
		}
	})
}

// ToInt converts the numeric kinds scripts and configs produce
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// ToString renders v the way it would appear in a header or URL
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
