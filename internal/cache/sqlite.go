package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore is the tier-2 adapter over the cache_entries table.
// Entries carry their own absolute expiry so a sweep can run
// independently of application reads.
type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT key, payload, owner_id, created_at, expires_at
		FROM cache_entries
		WHERE key = ?
	`, key)

	var (
		doc   Document
		owner sql.NullString
	)
	if err := row.Scan(&doc.Key, &doc.Payload, &owner, &doc.CreatedAt, &doc.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	doc.OwnerID = owner.String
	return &doc, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, doc Document) error {
	var owner any
	if doc.OwnerID != "" {
		owner = doc.OwnerID
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, owner_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		  payload = excluded.payload,
		  owner_id = excluded.owner_id,
		  created_at = excluded.created_at,
		  expires_at = excluded.expires_at
	`, doc.Key, doc.Payload, owner, doc.CreatedAt, doc.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", doc.Key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries for owner %s: %w", ownerID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteExpired removes every entry past its absolute expiry. Driven by
// a ticker in main; stale reads survive only until the next sweep.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
