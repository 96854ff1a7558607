package storage

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")
)

// Record is one stored key and its value.
type Record struct {
	Key   string
	Value string
}

// Store defines the interface for key-value storage.
type Store interface {
	// Create inserts a new key. Returns ErrKeyExists if the key is present.
	Create(key, value string) error
	// Read returns the value for key. Returns ErrKeyNotFound if absent.
	Read(key string) (string, error)
	// Update overwrites an existing key. Returns ErrKeyNotFound if absent.
	Update(key, value string) error
	// Delete removes a key. Returns ErrKeyNotFound if absent.
	Delete(key string) error
	// Snapshot returns every record sorted by key.
	Snapshot() []Record
	// Len returns the number of stored keys.
	Len() int
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]string),
	}
}

// Create inserts a new key.
func (s *InMemoryStore) Create(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return ErrKeyExists
	}
	s.data[key] = value
	return nil
}

// Read retrieves a value by key.
func (s *InMemoryStore) Read(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Update overwrites the value of an existing key.
func (s *InMemoryStore) Update(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return ErrKeyNotFound
	}
	s.data[key] = value
	return nil
}

// Delete removes a key.
func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return ErrKeyNotFound
	}
	delete(s.data, key)
	return nil
}

// Snapshot returns a sorted copy of all records.
func (s *InMemoryStore) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.data))
	for k, v := range s.data {
		out = append(out, Record{Key: k, Value: v})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of stored keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
