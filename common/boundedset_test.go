package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedOrderedMapEvictsOldestOnOverflow(t *testing.T) {
	a := assert.New(t)
	m := NewBoundedOrderedMap[string, int](3)

	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Insert("c", 3)
	a.Equal(3, m.Len())

	m.Insert("d", 4) // evicts "a"
	a.Equal(3, m.Len())
	a.False(m.Contains("a"))
	a.True(m.Contains("b"))
	a.True(m.Contains("c"))
	a.True(m.Contains("d"))

	v, ok := m.Get("d")
	a.True(ok)
	a.Equal(4, v)
}

func TestBoundedOrderedMapReinsertUpdatesValueNotOrder(t *testing.T) {
	a := assert.New(t)
	m := NewBoundedOrderedMap[string, int](2)

	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Insert("a", 100) // re-insert: value updates, "a" stays the oldest
	m.Insert("c", 3)   // overflow: evicts "a" despite the update

	a.False(m.Contains("a"))
	a.True(m.Contains("b"))
	a.True(m.Contains("c"))
}

func TestBoundedOrderedMapDelete(t *testing.T) {
	a := assert.New(t)
	m := NewBoundedOrderedMap[string, int](4)
	m.Insert("a", 1)
	a.True(m.Contains("a"))

	m.Delete("a")
	a.False(m.Contains("a"))
	a.Equal(0, m.Len())

	m.Delete("missing") // no-op, must not panic
}

func TestBoundedOrderedSetMembership(t *testing.T) {
	a := assert.New(t)
	s := NewBoundedOrderedSet[int](2)

	s.Insert(1)
	s.Insert(2)
	a.Equal(2, s.Len())

	s.Insert(3) // evicts 1
	a.False(s.Contains(1))
	a.True(s.Contains(2))
	a.True(s.Contains(3))
}

func TestNewBoundedOrderedMapClampsNonPositiveCapacity(t *testing.T) {
	a := assert.New(t)
	m := NewBoundedOrderedMap[int, int](0)

	m.Insert(1, 1)
	m.Insert(2, 2) // evicts 1, capacity clamped to 1
	a.Equal(1, m.Len())
	a.False(m.Contains(1))
	a.True(m.Contains(2))
}
