package match

import (
	"context"
	"log/slog"

	"manhwahub/pkg/models"
)

const (
	// MatchFloor is the minimum confidence for the pipeline to report a
	// match at all.
	MatchFloor = 0.70
	// AutoLinkFloor is the higher bar callers apply before persisting an
	// unconfirmed link automatically. Manual links bypass it.
	AutoLinkFloor = 0.85

	defaultCandidateLimit = 5
)

// Searcher queries the opposite catalog for candidate records. The
// implementation applies its own caching and rate limiting; the pipeline
// only sees records or an error.
type Searcher interface {
	Name() string
	SearchCandidates(ctx context.Context, title string, limit int) ([]models.MangaRecord, error)
}

// Pipeline finds the best counterpart for a record in the opposite
// catalog.
type Pipeline struct {
	Searcher Searcher
	Limit    int
	Logger   *slog.Logger
}

func NewPipeline(searcher Searcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Searcher: searcher, Limit: defaultCandidateLimit, Logger: logger}
}

// FindBestMatch tries each search title in the caller-provided order,
// scores every candidate against the source record and keeps the best
// pair seen across all titles. It short-circuits on a perfect score.
//
// A failed query for one title is logged and swallowed; the pipeline
// moves on to the next title. Only when every title fails, or nothing
// clears MatchFloor, does it report no match (nil record, never an
// error: "not found" is a valid negative result).
func (p *Pipeline) FindBestMatch(ctx context.Context, source models.MangaRecord, searchTitles []string) (*models.MangaRecord, float64) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	sourceTitles := TitleSet{
		Primary:    source.Title,
		Alternates: source.AltTitles,
		Year:       source.Year,
	}

	var (
		best           *models.MangaRecord
		bestConfidence float64
	)

search:
	for _, title := range searchTitles {
		if title == "" {
			continue
		}
		candidates, err := p.Searcher.SearchCandidates(ctx, title, limit)
		if err != nil {
			p.Logger.Warn("candidate search failed",
				slog.String("catalog", p.Searcher.Name()),
				slog.String("title", title),
				slog.String("error", err.Error()),
			)
			continue
		}

		for i := range candidates {
			c := candidates[i]
			confidence := Score(sourceTitles, TitleSet{
				Primary:    c.Title,
				Alternates: c.AltTitles,
				Year:       c.Year,
			})
			if confidence > bestConfidence {
				bestConfidence = confidence
				best = &candidates[i]
			}
			if bestConfidence >= 1.00 {
				break search
			}
		}
	}

	if best == nil || bestConfidence < MatchFloor {
		return nil, bestConfidence
	}
	return best, bestConfidence
}
