package memory

import (
	"bytes"
	"context"
	"sync"

	"ledger/internal/document"
)

// Store keeps documents in process memory.
type Store struct {
	mu     sync.Mutex
	docs   map[string][]byte
	closed bool
}

func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// NewWithDocuments returns a store pre-populated with docs.
func NewWithDocuments(docs map[string][]byte) *Store {
	s := New()
	for k, v := range docs {
		s.docs[k] = bytes.Clone(v)
	}
	return s
}

// Load returns a copy of the document under key.
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, document.ErrClosed
	}
	return bytes.Clone(s.docs[key]), nil
}

// Save replaces the document under key.
func (s *Store) Save(_ context.Context, key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return document.ErrClosed
	}
	s.docs[key] = bytes.Clone(doc)
	return nil
}

// Update holds the store lock for the whole load-mutate-save cycle.
func (s *Store) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return document.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := fn(bytes.Clone(s.docs[key]))
	if err != nil {
		return err
	}
	s.docs[key] = bytes.Clone(next)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
