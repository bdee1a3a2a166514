package live

import "sync"

// DefaultSubscriberCapacity is used when Subscribe is given a non-positive capacity.
const DefaultSubscriberCapacity = 64

// Topic fans values of one type out to its subscribers. Publishing never blocks:
// a slow subscriber loses its oldest values.
type Topic[T any] struct {
	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

// NewTopic creates a topic with no subscribers.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscription is one consumer of a Topic.
type Subscription[T any] struct {
	topic *Topic[T]
	ring  *RingChannel[T]
	once  sync.Once
}

// Subscribe registers a consumer buffering up to capacity values.
func (t *Topic[T]) Subscribe(capacity int) *Subscription[T] {
	if capacity <= 0 {
		capacity = DefaultSubscriberCapacity
	}
	s := &Subscription[T]{topic: t, ring: NewRingChannel[T](capacity)}

	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	return s
}

// Publish delivers v to every current subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for s := range t.subs {
		s.ring.ForceSend(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// C returns the channel values arrive on. It is closed after Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.ring.C()
}

// Dropped returns how many values were overwritten before being read.
func (s *Subscription[T]) Dropped() int64 {
	return s.ring.GetMetrics().Overwritten
}

// Cancel unregisters the subscription and closes its channel. Safe to call twice.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		delete(s.topic.subs, s)
		s.topic.mu.Unlock()
		s.ring.Close()
	})
}
