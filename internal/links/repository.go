// Package links persists and manages the per-user connections between
// AniList entries and MangaDex records.
package links

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"manhwahub/pkg/models"
)

// ErrNotFound is returned for lookups and deletes of absent links.
var ErrNotFound = errors.New("link not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts or refreshes a link keyed on (user_id, anilist_id).
// A manually linked row is immutable to automatic rewrites: the update
// applies only when the existing row is unconfirmed or the incoming
// link is itself a manual action.
func (r *Repository) Upsert(ctx context.Context, link *models.Link) error {
	anilistData, err := json.Marshal(link.AniListData)
	if err != nil {
		return fmt.Errorf("marshal anilist data: %w", err)
	}
	mangadexData, err := json.Marshal(link.MangaDexData)
	if err != nil {
		return fmt.Errorf("marshal mangadex data: %w", err)
	}

	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO manhwa_links
			(id, user_id, anilist_id, mangadex_id, anilist_data, mangadex_data,
			 match_confidence, manually_linked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, anilist_id) DO UPDATE SET
			mangadex_id      = excluded.mangadex_id,
			anilist_data     = excluded.anilist_data,
			mangadex_data    = excluded.mangadex_data,
			match_confidence = excluded.match_confidence,
			manually_linked  = excluded.manually_linked,
			updated_at       = excluded.updated_at
		WHERE manhwa_links.manually_linked = 0 OR excluded.manually_linked = 1`,
		link.ID, link.UserID, link.AniListID, link.MangaDexID,
		string(anilistData), string(mangadexData),
		link.Confidence, link.ManuallyLinked, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// GetByAniListID returns the user's link for one AniList entry, or
// ErrNotFound.
func (r *Repository) GetByAniListID(ctx context.Context, userID, anilistID string) (*models.Link, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, anilist_id, mangadex_id, anilist_data, mangadex_data,
		       match_confidence, manually_linked, created_at, updated_at
		FROM manhwa_links
		WHERE user_id = ? AND anilist_id = ?`,
		userID, anilistID,
	)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// ListByUser returns one page of the user's links, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Link, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, anilist_id, mangadex_id, anilist_data, mangadex_data,
		       match_confidence, manually_linked, created_at, updated_at
		FROM manhwa_links
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// CountByUser returns the total number of links a user holds.
func (r *Repository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM manhwa_links WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// MapByAniListID returns all of the user's links keyed by AniList id,
// for annotating a fetched list in one query.
func (r *Repository) MapByAniListID(ctx context.Context, userID string) (map[string]*models.Link, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, anilist_id, mangadex_id, anilist_data, mangadex_data,
		       match_confidence, manually_linked, created_at, updated_at
		FROM manhwa_links
		WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("map links: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.Link)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out[link.AniListID] = link
	}
	return out, rows.Err()
}

// Delete removes a link. Manual links can be deleted; only automatic
// rewriting is blocked.
func (r *Repository) Delete(ctx context.Context, userID, anilistID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM manhwa_links WHERE user_id = ? AND anilist_id = ?`,
		userID, anilistID,
	)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.Link, error) {
	var (
		link         models.Link
		anilistData  string
		mangadexData string
	)
	err := row.Scan(
		&link.ID, &link.UserID, &link.AniListID, &link.MangaDexID,
		&anilistData, &mangadexData,
		&link.Confidence, &link.ManuallyLinked, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(anilistData), &link.AniListData); err != nil {
		return nil, fmt.Errorf("decode anilist data: %w", err)
	}
	if err := json.Unmarshal([]byte(mangadexData), &link.MangaDexData); err != nil {
		return nil, fmt.Errorf("decode mangadex data: %w", err)
	}
	return &link, nil
}
