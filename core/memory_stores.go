package core

import (
	"context"
	"sync"
)

// MemoryStateStore is the process-local StateStore used when no persistence
// is wired. Safe for concurrent use.
type MemoryStateStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string]string)}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	value, ok := s.values[key]
	s.mu.RUnlock()
	return value, ok, nil
}

func (s *MemoryStateStore) Store(_ context.Context, key string, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// MemorySecretStore is the process-local SecretStore counterpart. Values are
// held in plaintext; it exists for tests and single-process hosts.
type MemorySecretStore struct {
	mu      sync.RWMutex
	values  map[string]string
	changes *EventStream[string]
}

func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{
		values:  make(map[string]string),
		changes: NewEventStream[string](),
	}
}

func (s *MemorySecretStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	value, ok := s.values[key]
	s.mu.RUnlock()
	return value, ok, nil
}

func (s *MemorySecretStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	s.changes.Emit(key)
	return nil
}

func (s *MemorySecretStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()
	if existed {
		s.changes.Emit(key)
	}
	return nil
}

func (s *MemorySecretStore) OnDidChangeSecret(handler func(key string)) (cancel func()) {
	return s.changes.Subscribe(handler)
}

var (
	_ StateStore  = (*MemoryStateStore)(nil)
	_ SecretStore = (*MemorySecretStore)(nil)
)
