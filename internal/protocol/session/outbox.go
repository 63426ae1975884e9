package session

import (
	"strings"
	"sync"
)

// Outbox is a FIFO of pending items keyed by a stable request id.
type Outbox[T any] struct {
	mu    sync.RWMutex
	order []string
	items map[string]T
}

func NewOutbox[T any]() *Outbox[T] {
	return &Outbox[T]{
		items: make(map[string]T),
	}
}

// Push appends item. It reports false when id is empty or already queued.
func (o *Outbox[T]) Push(id string, item T) bool {
	key := strings.TrimSpace(id)
	if key == "" {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.items[key]; ok {
		return false
	}
	o.items[key] = item
	o.order = append(o.order, key)
	return true
}

func (o *Outbox[T]) Remove(id string) (T, bool) {
	key := strings.TrimSpace(id)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(o.items, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return item, true
}

func (o *Outbox[T]) Get(id string) (T, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[strings.TrimSpace(id)]
	return item, ok
}

// Drain removes and returns every item in arrival order.
func (o *Outbox[T]) Drain() []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]T, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, o.items[k])
	}
	o.order = nil
	o.items = make(map[string]T)
	return out
}

func (o *Outbox[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.order)
}

// IDs lists queued ids in arrival order.
func (o *Outbox[T]) IDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}
