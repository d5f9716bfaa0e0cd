package channel

import "sync"

const defaultSubscriberBuffer = 16

// Latest is a hot stream that remembers its most recent value. New
// subscribers receive that value first, then every later one. A subscriber
// that falls behind loses its oldest undelivered values, never the newest.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	has     bool
	closed  bool
	nextID  uint64
	subs    map[uint64]chan T
	bufSize int
}

// NewLatest creates an empty latest-value stream.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		subs:    make(map[uint64]chan T),
		bufSize: defaultSubscriberBuffer,
	}
}

// Publish records v as the latest value and fans it out.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.value = v
	l.has = true
	for _, ch := range l.subs {
		offer(ch, v)
	}
}

// Latest returns the most recent value, if any has been published.
func (l *Latest[T]) Latest() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.has
}

// Subscribe returns a channel of values starting with the current one and a
// function that disposes the subscription. The channel is closed on dispose
// or when the stream is closed. Dispose is safe to call more than once.
func (l *Latest[T]) Subscribe() (<-chan T, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan T, l.bufSize)
	if l.closed {
		close(ch)
		return ch, func() {}
	}
	if l.has {
		ch <- l.value
	}

	id := l.nextID
	l.nextID++
	l.subs[id] = ch

	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if c, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(c)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (l *Latest[T]) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close ends the stream and every subscription.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}

// offer delivers v, evicting the oldest buffered value when ch is full.
// Only Publish sends on subscriber channels, and it holds the lock.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
