// Package racy contains deliberately broken lazy-initialization
// variants. They exist so the lazycell tests can demonstrate the bugs
// the real policies are built to prevent. Nothing in this package is
// safe to use.
package racy

import "sync"

// Unguarded is the naive lazy cell: check the slot, construct on miss,
// no synchronization anywhere. Two goroutines can both observe an
// empty slot and both run init, and a reader can observe the slot
// pointer before the writes made by init.
type Unguarded[T any] struct {
	val  *T
	init func() T
}

func NewUnguarded[T any](init func() T) *Unguarded[T] {
	return &Unguarded[T]{init: init}
}

func (c *Unguarded[T]) Get() *T {
	if c.val == nil {
		v := c.init()
		c.val = &v
	}
	return c.val
}

// UnorderedCheck is double-checked locking with a plain load on the
// fast path. The mutex does make construction happen once, but the
// fast-path read has no ordering relationship with the store that
// publishes val: a goroutine can see a non-nil pointer whose pointee
// the initializer has not finished writing, from that goroutine's
// point of view. The fix is making publication a release store and the
// fast-path read an acquire load, which is what lazycell.PolicyOrdered
// does.
type UnorderedCheck[T any] struct {
	mu   sync.Mutex
	val  *T
	init func() T
}

func NewUnorderedCheck[T any](init func() T) *UnorderedCheck[T] {
	return &UnorderedCheck[T]{init: init}
}

func (c *UnorderedCheck[T]) Get() *T {
	if c.val == nil {
		c.mu.Lock()
		if c.val == nil {
			v := c.init()
			c.val = &v
		}
		c.mu.Unlock()
	}
	return c.val
}
