// Package notify provides a small synchronous listener registry.
//
// A Hub fans an emitted value out to every subscribed listener, in
// subscription order, on the emitting goroutine. Listeners must not block:
// Emit is typically called from latency-sensitive callback paths.
package notify

import (
	"slices"
	"sync"
)

// Hub is a set of listeners for values of type T. The zero value is ready to
// use.
type Hub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

// Handle identifies one subscription and supports its removal.
type Handle struct {
	remove func()
	once   sync.Once
}

// Remove unsubscribes the listener. Safe to call more than once.
func (h *Handle) Remove() {
	h.once.Do(h.remove)
}

// Subscribe registers fn and returns a handle that removes it.
func (h *Hub[T]) Subscribe(fn func(T)) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	return &Handle{remove: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}}
}

// Emit invokes every currently subscribed listener with v, in subscription
// order. Listeners run synchronously on the caller's goroutine.
func (h *Hub[T]) Emit(v T) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of active subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
