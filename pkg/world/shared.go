package world

import (
	"reflect"
	"sync"

	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/rotisserie/eris"
)

type sharedKey struct {
	typ   query.TypeIndex
	value any
}

type sharedEntry struct {
	key  sharedKey
	refs int
}

// SharedStore interns shared-component values per type and reference counts them. The nil value
// maps to query.DefaultSharedValue, which is never counted.
type SharedStore struct {
	mu      sync.Mutex
	byKey   map[sharedKey]query.SharedIndex
	entries map[query.SharedIndex]*sharedEntry
	next    query.SharedIndex
}

var _ query.SharedComponentStore = (*SharedStore)(nil)

// NewSharedStore creates an empty shared store.
func NewSharedStore() *SharedStore {
	return &SharedStore{
		byKey:   make(map[sharedKey]query.SharedIndex),
		entries: make(map[query.SharedIndex]*sharedEntry),
		next:    query.DefaultSharedValue + 1,
	}
}

// Intern returns the index of value and takes a reference on it. Values must be comparable.
func (s *SharedStore) Intern(t query.TypeIndex, value any) (query.SharedIndex, error) {
	if value == nil {
		return query.DefaultSharedValue, nil
	}
	if !reflect.TypeOf(value).Comparable() {
		return 0, eris.Errorf("shared value of type %T is not comparable", value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sharedKey{typ: t, value: value}
	if idx, ok := s.byKey[key]; ok {
		s.entries[idx].refs++
		return idx, nil
	}
	idx := s.next
	s.next++
	s.byKey[key] = idx
	s.entries[idx] = &sharedEntry{key: key, refs: 1}
	return idx, nil
}

// Retain takes another reference on an interned index.
func (s *SharedStore) Retain(idx query.SharedIndex) {
	if idx == query.DefaultSharedValue {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[idx]
	assert.That(ok, "retain of unknown shared index %d", idx)
	entry.refs++
}

// Release drops a reference. The value is forgotten when its last reference is released.
func (s *SharedStore) Release(idx query.SharedIndex) {
	if idx == query.DefaultSharedValue {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[idx]
	if !ok {
		assert.That(false, "release of unknown shared index %d", idx)
		return
	}
	entry.refs--
	if entry.refs > 0 {
		return
	}
	delete(s.byKey, entry.key)
	delete(s.entries, idx)
}

// Value returns the value behind an index.
func (s *SharedStore) Value(idx query.SharedIndex) (any, bool) {
	if idx == query.DefaultSharedValue {
		return nil, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[idx]
	if !ok {
		return nil, false
	}
	return entry.key.value, true
}

// RefCount returns the number of references held on an index.
func (s *SharedStore) RefCount(idx query.SharedIndex) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[idx]; ok {
		return entry.refs
	}
	return 0
}

// Len returns the number of interned values.
func (s *SharedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
