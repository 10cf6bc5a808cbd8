// Package realtime fans out store notifications to in-process subscribers
// such as websocket connections.
package realtime

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 16

// Broker delivers published values to every subscriber whose filter
// accepts them. Publish never blocks: a subscriber whose buffer is full
// misses the value and is expected to re-read state on the next one.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[int64]*subscriber[T]
	nextID  int64
	buffer  int
	dropped atomic.Int64
	closed  bool
}

type subscriber[T any] struct {
	ch    chan T
	match func(T) bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs:   make(map[int64]*subscriber[T]),
		buffer: defaultBuffer,
	}
}

// Subscribe registers a subscriber. A nil match accepts everything. The
// returned cancel func unregisters and closes the channel; it is safe to
// call more than once.
func (b *Broker[T]) Subscribe(match func(T) bool) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = &subscriber[T]{ch: ch, match: match}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish offers v to all matching subscribers.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.match != nil && !s.match(v) {
			continue
		}
		select {
		case s.ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped for full buffers.
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers reports the current subscriber count.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
