// Package memory is an in-process Store, grounded on
// feriteja-satu-naskah-be/socket/hub.go's DocumentCache map: useful for
// tests and for operators who don't want a Postgres dependency.
package memory

import (
	"context"
	"sync"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/persistence"
)

// Store is a mutex-guarded map of room id to document, satisfying
// persistence.Store and persistence.DeletionSource.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]document.Document
	deletions chan string
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		docs:      make(map[string]document.Document),
		deletions: make(chan string, 16),
	}
}

func (s *Store) Load(_ context.Context, roomID string) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[roomID]
	if !ok {
		return document.Empty(), persistence.ErrNotFound
	}
	return doc, nil
}

func (s *Store) Save(_ context.Context, roomID string, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[roomID] = doc
	return nil
}

// Delete removes a room's document and publishes a deletion
// notification, simulating the external store's out-of-band delete.
func (s *Store) Delete(roomID string) {
	s.mu.Lock()
	delete(s.docs, roomID)
	s.mu.Unlock()

	select {
	case s.deletions <- roomID:
	default:
	}
}

// Deletions implements persistence.DeletionSource.
func (s *Store) Deletions() <-chan string {
	return s.deletions
}
