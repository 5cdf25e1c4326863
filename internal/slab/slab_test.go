package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArena(t *testing.T) {
	a := New[string](2)
	first := a.Insert("first")
	a.Insert("second")
	assert.Equal(t, 2, a.Len())

	v, ok := a.Get(first)
	assert.True(t, ok)
	assert.Equal(t, "first", *v)

	removed, ok := a.Remove(first)
	assert.True(t, ok)
	assert.Equal(t, "first", removed)
	assert.Equal(t, 1, a.Len())
	assert.False(t, a.Contains(first))

	// slot reuse bumps the generation, so the stale index stays dead
	third := a.Insert("third")
	assert.Equal(t, first.Slot, third.Slot)
	assert.NotEqual(t, first.Gen, third.Gen)
	assert.False(t, a.Contains(first))
	assert.True(t, a.Contains(third))

	_, ok = a.Remove(first)
	assert.False(t, ok)

	var seen []string
	a.Range(func(_ Index, v *string) bool {
		seen = append(seen, *v)
		return true
	})
	assert.ElementsMatch(t, []string{"second", "third"}, seen)
}

func TestArenaZeroIndex(t *testing.T) {
	a := New[int](0)
	var zero Index
	assert.True(t, zero.IsZero())
	assert.False(t, a.Contains(zero))
	a.Insert(1)
	assert.False(t, a.Contains(zero))
}
