package search

import (
	"sort"

	"manhwahub/internal/match"
	"manhwahub/pkg/models"
)

// Merge combines result lists from both catalogs into one deduplicated
// list. Records are keyed by normalized primary title; the first list
// wins a collision, so callers pass the preferred catalog first. Order
// within each list is preserved.
func Merge(primary, secondary []models.MangaRecord) []models.MangaRecord {
	out := make([]models.MangaRecord, 0, len(primary)+len(secondary))
	seen := make(map[string]bool, len(primary))

	for _, lists := range [][]models.MangaRecord{primary, secondary} {
		for _, rec := range lists {
			key := match.Normalize(rec.Title)
			if key == "" {
				key = rec.Source + ":" + rec.ID
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rec)
		}
	}
	return out
}

// Filters narrows a merged result list. Zero values mean "no bound".
type Filters struct {
	MinChapters int
	MaxChapters int
	MinRating   float64
	Status      string
	YearFrom    int
	YearTo      int
}

func (f Filters) keep(rec models.MangaRecord) bool {
	if f.MinChapters > 0 && rec.ChapterCount < f.MinChapters {
		return false
	}
	if f.MaxChapters > 0 && rec.ChapterCount > f.MaxChapters {
		return false
	}
	if f.MinRating > 0 && (rec.Rating == nil || *rec.Rating < f.MinRating) {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.YearFrom > 0 && (rec.Year == 0 || rec.Year < f.YearFrom) {
		return false
	}
	if f.YearTo > 0 && (rec.Year == 0 || rec.Year > f.YearTo) {
		return false
	}
	return true
}

// Apply returns the records passing every set filter.
func (f Filters) Apply(records []models.MangaRecord) []models.MangaRecord {
	if f == (Filters{}) {
		return records
	}
	out := make([]models.MangaRecord, 0, len(records))
	for _, rec := range records {
		if f.keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Sort orders. Relevance keeps the upstream (merged) ordering.
const (
	SortRelevance   = "relevance"
	SortRating      = "rating"
	SortChapters    = "chapters"
	SortReleaseDate = "release_date"
)

// Order sorts records by the named key, descending, with unrated or
// undated records last. The sort is stable so relevance order breaks
// ties.
func Order(records []models.MangaRecord, by string) {
	switch by {
	case SortRating:
		sort.SliceStable(records, func(i, j int) bool {
			return ratingOf(records[i]) > ratingOf(records[j])
		})
	case SortChapters:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].ChapterCount > records[j].ChapterCount
		})
	case SortReleaseDate:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Year > records[j].Year
		})
	}
}

func ratingOf(rec models.MangaRecord) float64 {
	if rec.Rating == nil {
		return -1
	}
	return *rec.Rating
}
