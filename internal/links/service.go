package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"manhwahub/internal/cache"
	"manhwahub/internal/match"
	"manhwahub/pkg/models"
)

// ListSource is the slice of the AniList client the service needs.
type ListSource interface {
	Get(ctx context.Context, id int) (*models.MangaRecord, error)
	UserList(ctx context.Context, anilistUserID int, token, ownerID string) (map[string][]models.ListEntry, error)
}

// RecordSource is the slice of the MangaDex client the service needs.
type RecordSource interface {
	Get(ctx context.Context, id string) (*models.MangaRecord, error)
}

// Matcher runs the matching pipeline for one record's titles.
type Matcher interface {
	FindBestMatch(ctx context.Context, source models.MangaRecord, searchTitles []string) (*models.MangaRecord, float64)
}

// Notifier pushes a progress or change event to one user's sockets.
// A nil Notifier is allowed; events are then dropped.
type Notifier interface {
	Notify(userID string, event any)
}

// Event names pushed over the websocket hub.
const (
	EventLinkCreated       = "link.created"
	EventLinkRemoved       = "link.removed"
	EventAutoMatchProgress = "automatch.progress"
	EventAutoMatchDone     = "automatch.done"
)

type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// AutoMatchProgress is the per-entry progress payload.
type AutoMatchProgress struct {
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Title      string  `json:"title"`
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence,omitempty"`
}

// AutoMatchReport summarizes one auto-match run.
type AutoMatchReport struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Skipped   int `json:"skipped"` // manual links, never recomputed
	Unmatched int `json:"unmatched"`
}

type Service struct {
	repo     *Repository
	anilist  ListSource
	mangadex RecordSource
	// matcher searches MangaDex for an AniList record; reverse goes the
	// other way, for adding a list entry from a MangaDex page.
	matcher  Matcher
	reverse  Matcher
	notifier Notifier
	cache    *cache.Tiered
	logger   *slog.Logger
}

func NewService(repo *Repository, anilist ListSource, mangadex RecordSource, matcher, reverse Matcher, notifier Notifier, tiered *cache.Tiered, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		anilist:  anilist,
		mangadex: mangadex,
		matcher:  matcher,
		reverse:  reverse,
		notifier: notifier,
		cache:    tiered,
		logger:   logger,
	}
}

func (s *Service) notify(userID, name string, payload any) {
	if s.notifier != nil {
		s.notifier.Notify(userID, Event{Name: name, Payload: payload})
	}
}

func (s *Service) invalidateUserScope(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	pattern := cache.OwnerPattern("anilist", userID)
	if err := s.cache.InvalidateOwnerScope(ctx, userID, pattern); err != nil {
		s.logger.Warn("invalidate user cache scope",
			slog.String("user", userID), slog.String("error", err.Error()))
	}
}

// Connect creates a manual link between an AniList entry and a MangaDex
// record. Manual links carry confidence 1.0 and are immutable to the
// automatic matcher.
func (s *Service) Connect(ctx context.Context, userID string, anilistID int, mangadexID string) (*models.Link, error) {
	anilistRec, err := s.anilist.Get(ctx, anilistID)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	mangadexRec, err := s.mangadex.Get(ctx, mangadexID)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	link := &models.Link{
		ID:             uuid.NewString(),
		UserID:         userID,
		AniListID:      strconv.Itoa(anilistID),
		MangaDexID:     mangadexID,
		AniListData:    *anilistRec,
		MangaDexData:   *mangadexRec,
		Confidence:     1.0,
		ManuallyLinked: true,
	}
	if err := s.repo.Upsert(ctx, link); err != nil {
		return nil, err
	}

	s.invalidateUserScope(ctx, userID)
	s.notify(userID, EventLinkCreated, link)
	return link, nil
}

// Unlink removes a link, manual or automatic.
func (s *Service) Unlink(ctx context.Context, userID, anilistID string) error {
	if err := s.repo.Delete(ctx, userID, anilistID); err != nil {
		return err
	}
	s.invalidateUserScope(ctx, userID)
	s.notify(userID, EventLinkRemoved, map[string]string{"anilist_id": anilistID})
	return nil
}

// Connections returns one page of the user's links plus the total.
func (s *Service) Connections(ctx context.Context, userID string, page, perPage int) ([]models.Link, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	list, err := s.repo.ListByUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// AutoMatch walks the user's AniList list, runs the matching pipeline
// for every entry and persists matches at or above minConfidence.
// Manual links are skipped; unconfirmed automatic links are recomputed.
// Progress is streamed per entry through the notifier.
func (s *Service) AutoMatch(ctx context.Context, userID string, anilistUserID int, token string, minConfidence float64) (*AutoMatchReport, error) {
	if minConfidence <= 0 {
		minConfidence = match.AutoLinkFloor
	}

	grouped, err := s.anilist.UserList(ctx, anilistUserID, token, userID)
	if err != nil {
		return nil, fmt.Errorf("auto-match: %w", err)
	}
	existing, err := s.repo.MapByAniListID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auto-match: %w", err)
	}

	var entries []models.ListEntry
	for _, group := range grouped {
		entries = append(entries, group...)
	}

	report := &AutoMatchReport{Total: len(entries)}
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("auto-match aborted: %w", err)
		}

		anilistID := entry.Media.ID
		if prior, ok := existing[anilistID]; ok && prior.ManuallyLinked {
			report.Skipped++
			s.notify(userID, EventAutoMatchProgress, AutoMatchProgress{
				Processed: i + 1, Total: report.Total, Title: entry.Media.Title,
				Matched: true, Confidence: prior.Confidence,
			})
			continue
		}

		candidate, confidence := s.matcher.FindBestMatch(ctx, entry.Media, entry.Media.AllTitles())
		matched := candidate != nil && confidence >= minConfidence
		if matched {
			link := &models.Link{
				ID:           uuid.NewString(),
				UserID:       userID,
				AniListID:    anilistID,
				MangaDexID:   candidate.ID,
				AniListData:  entry.Media,
				MangaDexData: *candidate,
				Confidence:   confidence,
			}
			if prior, ok := existing[anilistID]; ok {
				link.ID = prior.ID
				link.CreatedAt = prior.CreatedAt
			}
			if err := s.repo.Upsert(ctx, link); err != nil {
				return nil, fmt.Errorf("auto-match persist %s: %w", anilistID, err)
			}
			report.Matched++
		} else {
			report.Unmatched++
		}

		s.notify(userID, EventAutoMatchProgress, AutoMatchProgress{
			Processed: i + 1, Total: report.Total, Title: entry.Media.Title,
			Matched: matched, Confidence: confidence,
		})
	}

	s.invalidateUserScope(ctx, userID)
	s.notify(userID, EventAutoMatchDone, report)
	return report, nil
}

// ErrNoMatch is the valid negative result: no candidate reached the
// confidence bar. Distinct from upstream failures.
var ErrNoMatch = errors.New("no match above confidence threshold")

// AddByMangaDex finds the best AniList counterpart for a MangaDex
// record and links it for the user. Used from a MangaDex details page
// to pull a work onto the user's list side.
func (s *Service) AddByMangaDex(ctx context.Context, userID, mangadexID string, minConfidence float64) (*models.Link, error) {
	if minConfidence <= 0 {
		minConfidence = match.AutoLinkFloor
	}

	src, err := s.mangadex.Get(ctx, mangadexID)
	if err != nil {
		return nil, fmt.Errorf("add by mangadex: %w", err)
	}

	candidate, confidence := s.reverse.FindBestMatch(ctx, *src, src.AllTitles())
	if candidate == nil || confidence < minConfidence {
		return nil, fmt.Errorf("add by mangadex %s: %w (best %.2f)", mangadexID, ErrNoMatch, confidence)
	}

	link := &models.Link{
		ID:           uuid.NewString(),
		UserID:       userID,
		AniListID:    candidate.ID,
		MangaDexID:   mangadexID,
		AniListData:  *candidate,
		MangaDexData: *src,
		Confidence:   confidence,
	}
	if err := s.repo.Upsert(ctx, link); err != nil {
		return nil, err
	}

	s.invalidateUserScope(ctx, userID)
	s.notify(userID, EventLinkCreated, link)
	return link, nil
}

// Sync drops every cached document the user owns and refetches the
// annotated list, so edits made on AniList directly show up at once.
func (s *Service) Sync(ctx context.Context, userID string, anilistUserID int, token string) (map[string][]models.ListEntry, error) {
	s.invalidateUserScope(ctx, userID)
	return s.AnnotatedList(ctx, userID, anilistUserID, token)
}

// AnnotatedList returns the user's AniList list with local link state
// attached to every entry.
func (s *Service) AnnotatedList(ctx context.Context, userID string, anilistUserID int, token string) (map[string][]models.ListEntry, error) {
	grouped, err := s.anilist.UserList(ctx, anilistUserID, token, userID)
	if err != nil {
		return nil, err
	}
	linked, err := s.repo.MapByAniListID(ctx, userID)
	if err != nil {
		return nil, err
	}

	for status, group := range grouped {
		for i := range group {
			if link, ok := linked[group[i].Media.ID]; ok {
				group[i].Link = link
				group[i].IsLinked = true
			}
		}
		grouped[status] = group
	}
	return grouped, nil
}

// IsNotFound reports whether err is the absent-link error, for handlers
// translating to a 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoMatch reports whether err is the below-threshold match result.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatch)
}
