package core

import "sync"

// SessionChangeEvent fans out to clients whenever a provider's sessions
// change.
type SessionChangeEvent struct {
	ProviderID string
	Added      []Session
	Removed    []Session
	Changed    []Session
}

// AccessChangeEvent marks an allow-list mutation for one account.
type AccessChangeEvent struct {
	ProviderID   string
	AccountLabel string
}

// RegistryEvent announces a provider (un)registration.
type RegistryEvent struct {
	ProviderID string
	Label      string
}

// TokenChangeEvent is the typed re-emission of a dynamic-provider secret
// change.
type TokenChangeEvent struct {
	AuthProviderID string
	ClientID       string
	Tokens         TokenSet
}

type eventSubscriber[T any] struct {
	id      int
	handler func(T)
}

// EventStream is a minimal broadcast channel: synchronous, ordered delivery
// to subscribers in registration order, matching the host's event-loop
// semantics.
type EventStream[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []eventSubscriber[T]
}

func NewEventStream[T any]() *EventStream[T] {
	return &EventStream[T]{}
}

// Subscribe registers a handler and returns its cancel func. Handlers run on
// the emitting goroutine; they must not block.
func (s *EventStream[T]) Subscribe(handler func(T)) (cancel func()) {
	if s == nil || handler == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, eventSubscriber[T]{id: id, handler: handler})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for idx, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:idx], s.subs[idx+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every subscriber present at call time.
func (s *EventStream[T]) Emit(event T) {
	if s == nil {
		return
	}
	s.mu.Lock()
	subs := make([]eventSubscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}
