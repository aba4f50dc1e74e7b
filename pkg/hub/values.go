package hub

import (
	"sync"
	"time"
)

// Value is one decoded telemetry update for a (port, mode) pair.
type Value struct {
	// Port is the port index.
	Port int

	// Mode is the single device mode the values belong to.
	Mode int

	// Values are the decoded numeric fields.
	Values []float64

	// At is the receipt timestamp.
	At time.Time
}

// valueKey identifies a (port, mode) slot in the store.
type valueKey struct {
	port int
	mode int
}

// Subscription is an independent stream of Value updates for one
// (port, mode) pair. The channel carries the latest value only: when
// the consumer lags, intermediate updates are dropped, never queued.
// The channel is closed on device detach or Close.
type Subscription struct {
	store *valueStore
	key   valueKey
	ch    chan Value

	mu     sync.Mutex
	closed bool
}

// Values returns the update channel.
func (s *Subscription) Values() <-chan Value {
	return s.ch
}

// Close ends the subscription and closes the channel.
func (s *Subscription) Close() {
	s.store.unsubscribe(s)
}

// send delivers an update without blocking. A stale buffered value is
// dropped in favor of the new one.
func (s *Subscription) send(v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- v:
		default:
		}
	}
}

// terminate closes the channel exactly once.
func (s *Subscription) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// valueStore keeps the latest value per (port, mode) and fans updates
// out to subscribers without ever blocking the publisher.
type valueStore struct {
	mu     sync.RWMutex
	latest map[valueKey]Value
	subs   map[valueKey][]*Subscription
}

func newValueStore() *valueStore {
	return &valueStore{
		latest: make(map[valueKey]Value),
		subs:   make(map[valueKey][]*Subscription),
	}
}

// Latest returns the most recent value for (port, mode).
func (s *valueStore) Latest(port, mode int) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.latest[valueKey{port, mode}]
	return v, ok
}

// Subscribe registers a new update stream for (port, mode).
func (s *valueStore) Subscribe(port, mode int) *Subscription {
	sub := &Subscription{
		store: s,
		key:   valueKey{port, mode},
		ch:    make(chan Value, 1),
	}
	s.mu.Lock()
	s.subs[sub.key] = append(s.subs[sub.key], sub)
	s.mu.Unlock()
	return sub
}

// publish overwrites the latest value and notifies subscribers.
func (s *valueStore) publish(v Value) {
	key := valueKey{v.Port, v.Mode}
	s.mu.Lock()
	s.latest[key] = v
	subs := append([]*Subscription(nil), s.subs[key]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.send(v)
	}
}

// closePort ends every subscription on the given port. Latest values
// survive so the last reading remains observable after detach.
func (s *valueStore) closePort(port int) {
	var closing []*Subscription
	s.mu.Lock()
	for key, subs := range s.subs {
		if key.port != port {
			continue
		}
		closing = append(closing, subs...)
		delete(s.subs, key)
	}
	s.mu.Unlock()

	for _, sub := range closing {
		sub.terminate()
	}
}

// unsubscribe removes one subscription and closes its channel.
func (s *valueStore) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	subs := s.subs[sub.key]
	for i, candidate := range subs {
		if candidate == sub {
			s.subs[sub.key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(s.subs[sub.key]) == 0 {
		delete(s.subs, sub.key)
	}
	s.mu.Unlock()

	sub.terminate()
}
