package common

import (
	"sync"

	"golang.org/x/exp/constraints"
)

type Atomic[T any] interface {
	Store(x T)
	Load() T
	CompareAndSwap(old T, new T) (swapped bool)
}

type AtomicNumeric[T constraints.Integer] interface {
	Atomic[T]
	Add(n T) T
	And(n T) T
	Or(n T) T
}

// AtomicMorph applies morph to the current value in a compare-and-swap retry
// loop, storing morph's first return value and yielding its second as the
// call's result. Every numeric combinator below (Add, And, Or, AtomicSubtract)
// is written in terms of it.
func AtomicMorph[T any, R any](left Atomic[T], morph func(startVal T) (newVal T, result R)) R {
	for {
		cur := left.Load()
		newVal, result := morph(cur)
		if left.CompareAndSwap(cur, newVal) {
			return result
		}
	}
}

func AtomicSubtract[T constraints.Integer](left AtomicNumeric[T], right T) T {
	return AtomicMorph(left, func(startVal T) (val T, res T) {
		out := startVal - right
		return out, out
	})
}

// atomicNumeric is a mutex-guarded AtomicNumeric usable for any integer type,
// since the standard library's atomic package only special-cases a handful of
// fixed widths. Checkpoint Progress's four page counters are built on this.
type atomicNumeric[T constraints.Integer] struct {
	mu    sync.Mutex
	value T
}

func NewAtomicNumeric[T constraints.Integer](initial T) AtomicNumeric[T] {
	return &atomicNumeric[T]{value: initial}
}

func (a *atomicNumeric[T]) Store(x T) {
	a.mu.Lock()
	a.value = x
	a.mu.Unlock()
}

func (a *atomicNumeric[T]) Load() T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

func (a *atomicNumeric[T]) CompareAndSwap(old T, new T) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.value != old {
		return false
	}
	a.value = new
	return true
}

func (a *atomicNumeric[T]) Add(n T) T {
	return AtomicMorph[T, T](a, func(s T) (T, T) { v := s + n; return v, v })
}

func (a *atomicNumeric[T]) And(n T) T {
	return AtomicMorph[T, T](a, func(s T) (T, T) { v := s & n; return v, v })
}

func (a *atomicNumeric[T]) Or(n T) T {
	return AtomicMorph[T, T](a, func(s T) (T, T) { v := s | n; return v, v })
}
