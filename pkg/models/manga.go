package models

// Source identifies which upstream catalog a record came from.
// The two identifier spaces are disjoint: a MangaDex UUID and an AniList
// numeric id are never compared directly, only linked through a match.
const (
	SourceMangaDex = "mangadex"
	SourceAniList  = "anilist"
)

// MangaRecord is the normalized, internal projection of one work from
// either catalog. All upstream shapes are mapped into this structure at
// the client boundary; nothing downstream touches raw payloads.
type MangaRecord struct {
	ID           string   `json:"id"`     // catalog-scoped identifier
	Source       string   `json:"source"` // "mangadex" or "anilist"
	Title        string   `json:"title"`
	AltTitles    []string `json:"alternative_titles,omitempty"`
	Description  string   `json:"description,omitempty"`
	CoverURL     string   `json:"cover_url,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	Artists      []string `json:"artists,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Status       string   `json:"status,omitempty"`
	Year         int      `json:"year,omitempty"`           // 0 = unknown
	ChapterCount int      `json:"chapters_count,omitempty"` // 0 = unknown
	// Rating is normalized to a 0-10 scale regardless of source scale.
	// nil means the catalog reported no score (distinct from 0).
	Rating  *float64 `json:"rating,omitempty"`
	Follows int      `json:"follows,omitempty"`
}

// AllTitles returns the primary title followed by alternates, skipping
// empties. The primary title is always first when present.
func (m MangaRecord) AllTitles() []string {
	out := make([]string, 0, 1+len(m.AltTitles))
	if m.Title != "" {
		out = append(out, m.Title)
	}
	for _, t := range m.AltTitles {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SearchPage is the paginated envelope returned by search and discovery
// operations.
type SearchPage struct {
	Results []MangaRecord `json:"results"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	HasNext bool          `json:"has_next"`
	// Stale is set when the page was served from an expired cache entry
	// because the live upstream fetch failed.
	Stale bool `json:"stale,omitempty"`
}

// Chapter is one MangaDex chapter feed entry.
type Chapter struct {
	ID          string `json:"id"`
	Chapter     string `json:"chapter"`
	Title       string `json:"title,omitempty"`
	Volume      string `json:"volume,omitempty"`
	Pages       int    `json:"pages"`
	Language    string `json:"language"`
	Group       string `json:"group,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	ReadableAt  string `json:"readable_at,omitempty"`
}

// ChapterPage is the paginated chapter feed envelope.
type ChapterPage struct {
	Chapters []Chapter `json:"chapters"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
	HasNext  bool      `json:"has_next"`
}
