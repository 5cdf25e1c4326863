// Package slab provides a generational slot arena. Values are addressed
// by an Index that pairs a slot with a generation counter, so a stale
// handle to a removed value can never reach a value that reused its slot.
package slab

// Index addresses a value in an Arena. The zero Index is never valid.
type Index struct {
	Slot uint32
	Gen  uint32
}

// IsZero reports whether i is the zero Index.
func (i Index) IsZero() bool {
	return i.Gen == 0
}

type slot[T any] struct {
	value    T
	gen      uint32
	occupied bool
}

// Arena is a generational slot arena. Not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	len   int
}

// New returns an Arena with capacity for n values before growing.
func New[T any](n int) *Arena[T] {
	return &Arena[T]{
		slots: make([]slot[T], 0, n),
		free:  make([]uint32, 0, n),
	}
}

// Insert stores v and returns its Index.
func (a *Arena[T]) Insert(v T) Index {
	a.len++
	if n := len(a.free); n > 0 {
		s := a.free[n-1]
		a.free = a.free[:n-1]
		sl := &a.slots[s]
		sl.value = v
		sl.gen++
		sl.occupied = true
		return Index{Slot: s, Gen: sl.gen}
	}
	a.slots = append(a.slots, slot[T]{value: v, gen: 1, occupied: true})
	return Index{Slot: uint32(len(a.slots) - 1), Gen: 1}
}

// Get returns a pointer to the value at i, or false if i is stale or empty.
func (a *Arena[T]) Get(i Index) (*T, bool) {
	if int(i.Slot) >= len(a.slots) {
		return nil, false
	}
	sl := &a.slots[i.Slot]
	if !sl.occupied || sl.gen != i.Gen {
		return nil, false
	}
	return &sl.value, true
}

// Contains reports whether i addresses a live value.
func (a *Arena[T]) Contains(i Index) bool {
	_, ok := a.Get(i)
	return ok
}

// Remove deletes the value at i and returns it.
func (a *Arena[T]) Remove(i Index) (T, bool) {
	var zero T
	if int(i.Slot) >= len(a.slots) {
		return zero, false
	}
	sl := &a.slots[i.Slot]
	if !sl.occupied || sl.gen != i.Gen {
		return zero, false
	}
	v := sl.value
	sl.value = zero
	sl.occupied = false
	a.free = append(a.free, i.Slot)
	a.len--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.len
}

// Range calls fn for every live value until fn returns false.
func (a *Arena[T]) Range(fn func(Index, *T) bool) {
	for s := range a.slots {
		sl := &a.slots[s]
		if !sl.occupied {
			continue
		}
		if !fn(Index{Slot: uint32(s), Gen: sl.gen}, &sl.value) {
			return
		}
	}
}
