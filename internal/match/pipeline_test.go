package match

import (
	"context"
	"errors"
	"testing"

	"manhwahub/pkg/models"
)

type fakeSearcher struct {
	results map[string][]models.MangaRecord
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) SearchCandidates(ctx context.Context, title string, limit int) ([]models.MangaRecord, error) {
	f.queries = append(f.queries, title)
	if err := f.errs[title]; err != nil {
		return nil, err
	}
	return f.results[title], nil
}

func record(id, title string, year int) models.MangaRecord {
	return models.MangaRecord{ID: id, Source: models.SourceMangaDex, Title: title, Year: year}
}

func TestFindBestMatchExactShortCircuits(t *testing.T) {
	f := &fakeSearcher{
		results: map[string][]models.MangaRecord{
			"Tower of God": {
				record("md-1", "Tower of God", 2020),
			},
			"Kami no Tou": {
				record("md-2", "Kami no Tou", 2020),
			},
		},
	}
	p := NewPipeline(f, nil)

	source := models.MangaRecord{ID: "al-1", Source: models.SourceAniList, Title: "Tower of God", Year: 2020}
	best, confidence := p.FindBestMatch(context.Background(), source, []string{"Tower of God", "Kami no Tou"})
	if best == nil || best.ID != "md-1" {
		t.Fatalf("expected md-1, got %+v", best)
	}
	if confidence != 1.00 {
		t.Fatalf("expected confidence 1.00, got %v", confidence)
	}
	if len(f.queries) != 1 {
		t.Fatalf("perfect match must short-circuit further titles, queried %v", f.queries)
	}
}

func TestFindBestMatchTriesTitlesInOrder(t *testing.T) {
	f := &fakeSearcher{
		results: map[string][]models.MangaRecord{
			"first":  nil,
			"second": {record("md-9", "Second Title Here", 2019)},
		},
	}
	p := NewPipeline(f, nil)

	source := models.MangaRecord{Source: models.SourceAniList, Title: "Second Title Here", Year: 2019}
	best, confidence := p.FindBestMatch(context.Background(), source, []string{"first", "second"})
	if best == nil || best.ID != "md-9" {
		t.Fatalf("expected md-9, got %+v (confidence %v)", best, confidence)
	}
	if len(f.queries) != 2 || f.queries[0] != "first" || f.queries[1] != "second" {
		t.Fatalf("titles not tried in caller order: %v", f.queries)
	}
}

func TestFindBestMatchAllTitlesErrorIsNoMatch(t *testing.T) {
	boom := errors.New("upstream down")
	f := &fakeSearcher{
		errs: map[string]error{"one": boom, "two": boom},
	}
	p := NewPipeline(f, nil)

	source := models.MangaRecord{Source: models.SourceAniList, Title: "Anything"}
	best, confidence := p.FindBestMatch(context.Background(), source, []string{"one", "two"})
	if best != nil {
		t.Fatalf("expected no match, got %+v", best)
	}
	if confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", confidence)
	}
	if len(f.queries) != 2 {
		t.Fatalf("pipeline must keep trying after errors, queried %v", f.queries)
	}
}

func TestFindBestMatchSwallowsPartialErrors(t *testing.T) {
	f := &fakeSearcher{
		errs: map[string]error{"broken": errors.New("503")},
		results: map[string][]models.MangaRecord{
			"working": {record("md-3", "Working Title Saga", 2021)},
		},
	}
	p := NewPipeline(f, nil)

	source := models.MangaRecord{Source: models.SourceAniList, Title: "Working Title Saga", Year: 2021}
	best, _ := p.FindBestMatch(context.Background(), source, []string{"broken", "working"})
	if best == nil || best.ID != "md-3" {
		t.Fatalf("expected match despite first-title failure, got %+v", best)
	}
}

func TestFindBestMatchBelowFloorIsNoMatch(t *testing.T) {
	f := &fakeSearcher{
		results: map[string][]models.MangaRecord{
			"query": {record("md-4", "Totally Unrelated Work", 0)},
		},
	}
	p := NewPipeline(f, nil)

	source := models.MangaRecord{Source: models.SourceAniList, Title: "Tower of God"}
	best, confidence := p.FindBestMatch(context.Background(), source, []string{"query"})
	if best != nil {
		t.Fatalf("low-confidence candidate must not be returned, got %+v (confidence %v)", best, confidence)
	}
	if confidence <= 0 || confidence >= MatchFloor {
		t.Fatalf("expected reported confidence below the floor, got %v", confidence)
	}
}
