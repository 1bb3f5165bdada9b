// Package postgres stores whiteboard documents in Postgres: one row
// per room holding the serialized current document plus bookkeeping
// columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/persistence"
)

// Store persists whiteboard documents in a Postgres "rooms" table.
type Store struct {
	db *sql.DB
}

// New opens a connection pool against dsn, pings it, and ensures the
// backing table exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS whiteboard_rooms (
		room_id    VARCHAR(128) PRIMARY KEY,
		document   JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, roomID string) (document.Document, error) {
	const query = `SELECT document FROM whiteboard_rooms WHERE room_id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return document.Empty(), persistence.ErrNotFound
		}
		return document.Empty(), fmt.Errorf("postgres: load %s: %w", roomID, err)
	}

	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document.Empty(), fmt.Errorf("postgres: decode %s: %w", roomID, err)
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, roomID string, doc document.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", roomID, err)
	}

	const query = `
	INSERT INTO whiteboard_rooms (room_id, document, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (room_id) DO UPDATE SET document = $2, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, roomID, raw); err != nil {
		return fmt.Errorf("postgres: save %s: %w", roomID, err)
	}
	return nil
}

// Delete removes a room's row. Exposed for operators/tests that want to
// simulate the external store's delete-document-by-id notification;
// it does not itself publish a DeletionSource event — Postgres has no
// push notification wired here (LISTEN/NOTIFY would be the natural fit
// but isn't implemented).
func (s *Store) Delete(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM whiteboard_rooms WHERE room_id = $1`, roomID)
	return err
}

var _ persistence.Store = (*Store)(nil)
