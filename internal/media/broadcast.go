package media

import (
	"sync"
	"sync/atomic"
)

// Subscription receives chunks published to a track. C is closed when the
// subscription or the track ends.
type Subscription struct {
	C <-chan AudioChunk

	ch   chan AudioChunk
	b    *Broadcaster
	once sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s)
	})
}

// Broadcaster fans audio chunks out to subscribers without blocking the
// producer. A subscriber whose buffer is full misses the chunk.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber with the given channel buffer. On a
// closed broadcaster the returned subscription is already closed.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan AudioChunk, buffer)
	sub := &Subscription{C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers chunk to every subscriber that has room for it.
func (b *Broadcaster) Publish(chunk AudioChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- chunk:
		default:
			b.dropped.Add(1)
		}
	}
}

// Len returns the number of attached subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}
