// Package normstore provides an immutable id-indexed collection with a stable
// insertion order, used in place of plain slices for O(1) lookup by id.
package normstore

import (
	"encoding/json"
)

// Entity is anything with a unique string id.
type Entity interface {
	EntityID() string
}

// Store maps ids to entities and keeps their order. The zero value is an empty store.
//
// Stores are values: every mutating method returns a new Store and leaves its
// receiver untouched. Every id in the order list has exactly one entry in the map
// and vice versa; mutations that would break this return an error instead.
type Store[T Entity] struct {
	byID   map[string]T
	allIDs []string
}

// Patch is a partial update applied by BatchUpdate.
type Patch[T Entity] struct {
	ID    string
	Apply func(T) T
}

// FromSlice builds a store from items, preserving their order. Duplicate ids are
// rejected with a *DuplicateIDError.
func FromSlice[T Entity](items []T) (Store[T], error) {
	s := Store[T]{
		byID:   make(map[string]T, len(items)),
		allIDs: make([]string, 0, len(items)),
	}
	for _, item := range items {
		id := item.EntityID()
		if _, ok := s.byID[id]; ok {
			return Store[T]{}, &DuplicateIDError{ID: id}
		}
		s.byID[id] = item
		s.allIDs = append(s.allIDs, id)
	}
	return s, nil
}

// MustFromSlice is FromSlice for inputs known to have unique ids. It panics otherwise.
func MustFromSlice[T Entity](items []T) Store[T] {
	s, err := FromSlice(items)
	if err != nil {
		panic(err)
	}
	return s
}

// ToSlice materializes the store in order.
func (s Store[T]) ToSlice() []T {
	out := make([]T, len(s.allIDs))
	for i, id := range s.allIDs {
		out[i] = s.byID[id]
	}
	return out
}

// Get returns the entity stored under id.
func (s Store[T]) Get(id string) (T, bool) {
	v, ok := s.byID[id]
	return v, ok
}

// Has reports whether id is present.
func (s Store[T]) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of entities.
func (s Store[T]) Len() int { return len(s.allIDs) }

// IDs returns a copy of the ordered id list.
func (s Store[T]) IDs() []string {
	out := make([]string, len(s.allIDs))
	copy(out, s.allIDs)
	return out
}

// Each calls fn for every entity in order, stopping when fn returns false.
func (s Store[T]) Each(fn func(T) bool) {
	for _, id := range s.allIDs {
		if !fn(s.byID[id]) {
			return
		}
	}
}

// Add appends item. An id already present yields a *DuplicateIDError.
func (s Store[T]) Add(item T) (Store[T], error) {
	id := item.EntityID()
	if s.Has(id) {
		return s, &DuplicateIDError{ID: id}
	}
	next := s.clone(1)
	next.byID[id] = item
	next.allIDs = append(next.allIDs, id)
	return next, nil
}

// Update replaces the entity stored under id without changing its position.
func (s Store[T]) Update(id string, item T) (Store[T], error) {
	if !s.Has(id) {
		return s, &UnknownIDError{ID: id}
	}
	if got := item.EntityID(); got != id {
		return s, &IDMismatchError{ID: id, ItemID: got}
	}
	next := s.clone(0)
	next.byID[id] = item
	return next, nil
}

// Remove deletes id from both the map and the order list.
func (s Store[T]) Remove(id string) (Store[T], error) {
	if !s.Has(id) {
		return s, &UnknownIDError{ID: id}
	}
	next := Store[T]{
		byID:   make(map[string]T, len(s.byID)-1),
		allIDs: make([]string, 0, len(s.allIDs)-1),
	}
	for _, other := range s.allIDs {
		if other == id {
			continue
		}
		next.byID[other] = s.byID[other]
		next.allIDs = append(next.allIDs, other)
	}
	return next, nil
}

// Reorder moves the id at position from to position to, shifting the ids in between.
func (s Store[T]) Reorder(from, to int) (Store[T], error) {
	n := len(s.allIDs)
	if from < 0 || from >= n || to < 0 || to >= n {
		return s, &IndexRangeError{From: from, To: to, Len: n}
	}
	next := s.clone(0)
	id := next.allIDs[from]
	if from < to {
		copy(next.allIDs[from:to], next.allIDs[from+1:to+1])
	} else {
		copy(next.allIDs[to+1:from+1], next.allIDs[to:from])
	}
	next.allIDs[to] = id
	return next, nil
}

// BatchUpdate applies patches in one pass. Patches for unknown ids are skipped,
// and a patch may not change the entity id (such patches are skipped too).
// The order list is never touched.
func (s Store[T]) BatchUpdate(patches []Patch[T]) Store[T] {
	next := s.clone(0)
	for _, p := range patches {
		cur, ok := next.byID[p.ID]
		if !ok || p.Apply == nil {
			continue
		}
		updated := p.Apply(cur)
		if updated.EntityID() != p.ID {
			continue
		}
		next.byID[p.ID] = updated
	}
	return next
}

// MarshalJSON encodes the store as its ordered slice.
func (s Store[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToSlice())
}

func (s Store[T]) clone(extra int) Store[T] {
	next := Store[T]{
		byID:   make(map[string]T, len(s.byID)+extra),
		allIDs: make([]string, len(s.allIDs), len(s.allIDs)+extra),
	}
	for k, v := range s.byID {
		next.byID[k] = v
	}
	copy(next.allIDs, s.allIDs)
	return next
}
