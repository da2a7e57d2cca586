// Package search fans one user query out to both catalogs concurrently
// and folds the answers into a single ranked, deduplicated page.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"manhwahub/pkg/models"
)

// Catalog is the slice of a catalog client the fan-out needs.
type Catalog interface {
	Name() string
	Search(ctx context.Context, query string, page, perPage int) (*models.SearchPage, error)
}

// StatsDecorator optionally backfills ratings and follow counts after
// the merge; the MangaDex client implements it, AniList records carry
// scores already.
type StatsDecorator interface {
	WithStats(ctx context.Context, records []models.MangaRecord) []models.MangaRecord
}

type Params struct {
	Query   string
	Page    int
	PerPage int
	Filters Filters
	Sort    string
}

type Service struct {
	primary   Catalog // wins title collisions in the merge
	secondary Catalog
	stats     StatsDecorator
	logger    *slog.Logger
}

func NewService(primary, secondary Catalog, stats StatsDecorator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{primary: primary, secondary: secondary, stats: stats, logger: logger}
}

type catalogResult struct {
	name string
	page *models.SearchPage
	err  error
}

// Search queries both catalogs in parallel. One catalog failing narrows
// the result to the other and is logged; both failing is an error.
func (s *Service) Search(ctx context.Context, p Params) (*models.SearchPage, error) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = 20
	}

	results := make(chan catalogResult, 2)
	for _, c := range []Catalog{s.primary, s.secondary} {
		go func(c Catalog) {
			page, err := c.Search(ctx, p.Query, p.Page, p.PerPage)
			results <- catalogResult{name: c.Name(), page: page, err: err}
		}(c)
	}

	pages := make(map[string]*models.SearchPage, 2)
	var firstErr error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			s.logger.Warn("catalog search failed",
				slog.String("catalog", r.name),
				slog.String("query", p.Query),
				slog.String("error", r.err.Error()),
			)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		pages[r.name] = r.page
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("search %q: all catalogs failed: %w", p.Query, firstErr)
	}

	var primaryRecs, secondaryRecs []models.MangaRecord
	stale := false
	total := 0
	hasNext := false
	if pg, ok := pages[s.primary.Name()]; ok {
		primaryRecs = pg.Results
		stale = stale || pg.Stale
		total += pg.Total
		hasNext = hasNext || pg.HasNext
	}
	if pg, ok := pages[s.secondary.Name()]; ok {
		secondaryRecs = pg.Results
		stale = stale || pg.Stale
		total += pg.Total
		hasNext = hasNext || pg.HasNext
	}

	merged := Merge(primaryRecs, secondaryRecs)
	if s.stats != nil {
		merged = s.stats.WithStats(ctx, merged)
	}
	merged = p.Filters.Apply(merged)
	Order(merged, p.Sort)

	return &models.SearchPage{
		Results: merged,
		Total:   total,
		Page:    p.Page,
		PerPage: p.PerPage,
		HasNext: hasNext,
		Stale:   stale,
	}, nil
}
