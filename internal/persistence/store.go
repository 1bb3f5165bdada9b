// Package persistence defines the contract the Room registry and Rooms
// use to cold-load and warm-save a room's document, plus a retrying,
// coalescing decorator shared by every concrete adapter.
package persistence

import (
	"context"
	"errors"

	"whiteboard-server/internal/document"
)

// ErrNotFound is returned by Store.Load when no document exists yet for
// a room id — the caller treats this as an empty document, not an error.
var ErrNotFound = errors.New("persistence: room document not found")

// Store is the external document store's contract, as consumed by this
// service: read-document-by-id and write-document-by-id. The store
// itself — schema, CRUD of whiteboard records, thumbnails — is out of
// scope; only these two operations are.
type Store interface {
	// Load fetches the persisted document for a room. It returns
	// ErrNotFound if the room has never been saved.
	Load(ctx context.Context, roomID string) (document.Document, error)
	// Save persists the document for a room, creating it if absent.
	Save(ctx context.Context, roomID string, doc document.Document) error
}

// DeletionSource is an optional capability a Store may implement: a
// channel of room ids the external store has deleted out-of-band. The
// registry forwards each id to the matching live Room (if any), which
// broadcasts room-deleted and tears itself down. Document CRUD lives
// upstream of this interface; this is only the notification edge the
// realtime server consumes.
type DeletionSource interface {
	Deletions() <-chan string
}
