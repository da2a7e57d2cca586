package models

import "time"

// Link pairs one AniList record with one MangaDex record for a user,
// together with the confidence the match was made at.
//
// A manually linked entry is immutable: automatic re-matching never
// overwrites it. Unconfirmed automatic links may be recomputed.
type Link struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	AniListID      string      `json:"anilist_id"`
	MangaDexID     string      `json:"mangadex_id"`
	AniListData    MangaRecord `json:"anilist_data"`
	MangaDexData   MangaRecord `json:"mangadex_data"`
	Confidence     float64     `json:"match_confidence"` // in [0,1]
	ManuallyLinked bool        `json:"manually_linked"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ListEntry is one entry from a user's AniList manga list.
type ListEntry struct {
	Status   string      `json:"status"`
	Progress int         `json:"progress"`
	Score    float64     `json:"score,omitempty"`
	Media    MangaRecord `json:"media"`
	// Link state filled in from local connections, nil when unlinked.
	Link     *Link `json:"connection,omitempty"`
	IsLinked bool  `json:"is_linked"`
}
