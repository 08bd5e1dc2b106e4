package storage

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
)

var ErrMissingKey = errors.New("storage: missing key")

// MissingKeyError names the key a Get could not find.
type MissingKeyError struct {
	Key string `cbor:"1,keyasint"`
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("storage: no value named %q is available in the context", e.Key)
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// Context is the capability every command runs against.
type Context interface {
	Get(key string) (any, error)
	Lookup(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
	Snapshot() map[string]any
}

// Store is the map-backed execution context. One Store lives for one chain.
type Store struct {
	mu    sync.RWMutex
	items map[string]any
}

func New() *Store {
	return &Store{items: make(map[string]any)}
}

// FromMap wraps m without copying it. A nil map starts empty.
func FromMap(m map[string]any) *Store {
	if m == nil {
		m = make(map[string]any)
	}
	return &Store{items: m}
}

// Get returns the value stored under key or a MissingKeyError.
func (s *Store) Get(key string) (any, error) {
	v, ok := s.Lookup(key)
	if !ok {
		return nil, &MissingKeyError{Key: key}
	}
	return v, nil
}

func (s *Store) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Keys returns stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns a shallow copy of the current contents.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.items)
}
