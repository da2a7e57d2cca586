// Package mangadex is the MangaDex REST catalog client. Every read goes
// through the two-tier cache first; a live fetch that fails against an
// unavailable or throttling upstream falls back to the stale tier.
package mangadex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"manhwahub/internal/cache"
	"manhwahub/internal/upstream"
	"manhwahub/pkg/models"
	"manhwahub/pkg/utils"
)

const keyPrefix = "mangadex"

type Client struct {
	baseURL string
	exec    *upstream.Executor
	cache   *cache.Tiered
	cfg     utils.UpstreamConfig
	logger  *slog.Logger
}

func NewClient(cfg utils.UpstreamConfig, exec *upstream.Executor, tiered *cache.Tiered, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.MangaDexURL,
		exec:    exec,
		cache:   tiered,
		cfg:     cfg,
		logger:  logger,
	}
}

// Search queries the catalog by title. Results include author, artist
// and cover relationships so a single call yields a complete record.
func (c *Client) Search(ctx context.Context, query string, page, perPage int) (*models.SearchPage, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	limit := perPage
	offset := (page - 1) * perPage

	key := cache.Key(keyPrefix, "search", query, strconv.Itoa(limit), strconv.Itoa(offset))
	if cached, ok := fromCache[models.SearchPage](ctx, c.cache, key); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("title", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Add("includes[]", "author")
	params.Add("includes[]", "artist")
	params.Add("includes[]", "cover_art")
	params.Add("contentRating[]", "safe")
	params.Add("contentRating[]", "suggestive")
	params.Set("order[relevance]", "desc")

	var resp mangaListResponse
	err := c.exec.DoJSON(ctx, upstream.Request{
		Method: "GET",
		URL:    c.baseURL + "/manga?" + params.Encode(),
	}, &resp)
	if err != nil {
		if cached, ok := staleFromCache[models.SearchPage](ctx, c.cache, key, err, c.logger); ok {
			cached.Stale = true
			return cached, nil
		}
		return nil, fmt.Errorf("mangadex search %q: %w", query, err)
	}

	records := make([]models.MangaRecord, 0, len(resp.Data))
	for _, m := range resp.Data {
		records = append(records, m.toRecord())
	}
	result := &models.SearchPage{
		Results: records,
		Total:   resp.Total,
		Page:    page,
		PerPage: perPage,
		HasNext: offset+len(records) < resp.Total,
	}
	toCache(ctx, c.cache, key, result, c.cfg.SearchTTL)
	return result, nil
}

// Get fetches one work by its MangaDex UUID.
func (c *Client) Get(ctx context.Context, id string) (*models.MangaRecord, error) {
	key := cache.Key(keyPrefix, "manga", id)
	if rec, ok := fromCache[models.MangaRecord](ctx, c.cache, key); ok {
		return rec, nil
	}

	params := url.Values{}
	params.Add("includes[]", "author")
	params.Add("includes[]", "artist")
	params.Add("includes[]", "cover_art")

	var resp mangaResponse
	err := c.exec.DoJSON(ctx, upstream.Request{
		Method: "GET",
		URL:    c.baseURL + "/manga/" + url.PathEscape(id) + "?" + params.Encode(),
	}, &resp)
	if err != nil {
		if rec, ok := staleFromCache[models.MangaRecord](ctx, c.cache, key, err, c.logger); ok {
			return rec, nil
		}
		return nil, fmt.Errorf("mangadex get %s: %w", id, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("mangadex get %s: %w: empty data", id, upstream.ErrMalformedPayload)
	}

	rec := resp.Data.toRecord()
	toCache(ctx, c.cache, key, &rec, c.cfg.DetailsTTL)
	return &rec, nil
}

// Stats carries the rating and follow count for one work. Ratings are
// already on a 0-10 scale upstream and pass through unchanged.
type Stats struct {
	Rating  *float64 `json:"rating,omitempty"`
	Follows int      `json:"follows"`
}

// Statistics fetches ratings and follows for up to 100 ids in one call.
func (c *Client) Statistics(ctx context.Context, ids []string) (map[string]Stats, error) {
	if len(ids) == 0 {
		return map[string]Stats{}, nil
	}

	params := url.Values{}
	for _, id := range ids {
		params.Add("manga[]", id)
	}
	key := cache.Key(keyPrefix, "stats", params.Encode())
	if stats, ok := fromCache[map[string]Stats](ctx, c.cache, key); ok {
		return *stats, nil
	}

	var resp statisticsResponse
	err := c.exec.DoJSON(ctx, upstream.Request{
		Method: "GET",
		URL:    c.baseURL + "/statistics/manga?" + params.Encode(),
	}, &resp)
	if err != nil {
		if stats, ok := staleFromCache[map[string]Stats](ctx, c.cache, key, err, c.logger); ok {
			return *stats, nil
		}
		return nil, fmt.Errorf("mangadex statistics: %w", err)
	}

	out := make(map[string]Stats, len(resp.Statistics))
	for id, s := range resp.Statistics {
		rating := s.Rating.Average
		if rating == nil {
			rating = s.Rating.Bayesian
		}
		out[id] = Stats{Rating: rating, Follows: s.Follows}
	}
	toCache(ctx, c.cache, key, &out, c.cfg.StatsTTL)
	return out, nil
}

// WithStats decorates records with their rating and follow count,
// best-effort: a statistics failure leaves the records unrated rather
// than failing the whole read.
func (c *Client) WithStats(ctx context.Context, records []models.MangaRecord) []models.MangaRecord {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.Source == models.SourceMangaDex {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return records
	}
	stats, err := c.Statistics(ctx, ids)
	if err != nil {
		c.logger.Warn("mangadex statistics unavailable", slog.String("error", err.Error()))
		return records
	}
	for i := range records {
		if s, ok := stats[records[i].ID]; ok {
			records[i].Rating = s.Rating
			records[i].Follows = s.Follows
		}
	}
	return records
}

// Chapters fetches one page of the chapter feed, newest first.
func (c *Client) Chapters(ctx context.Context, id, lang string, limit, offset int) (*models.ChapterPage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if lang == "" {
		lang = "en"
	}

	key := cache.Key(keyPrefix, "chapters", id, lang, strconv.Itoa(limit), strconv.Itoa(offset))
	if page, ok := fromCache[models.ChapterPage](ctx, c.cache, key); ok {
		return page, nil
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Add("translatedLanguage[]", lang)
	params.Add("includes[]", "scanlation_group")
	params.Set("order[chapter]", "desc")

	var resp chapterFeedResponse
	err := c.exec.DoJSON(ctx, upstream.Request{
		Method: "GET",
		URL:    c.baseURL + "/manga/" + url.PathEscape(id) + "/feed?" + params.Encode(),
	}, &resp)
	if err != nil {
		if page, ok := staleFromCache[models.ChapterPage](ctx, c.cache, key, err, c.logger); ok {
			return page, nil
		}
		return nil, fmt.Errorf("mangadex chapters %s: %w", id, err)
	}

	chapters := make([]models.Chapter, 0, len(resp.Data))
	for _, ch := range resp.Data {
		group := ""
		for _, rel := range ch.Relationships {
			if rel.Type == "scanlation_group" {
				group = rel.Attributes.Name
				break
			}
		}
		chapters = append(chapters, models.Chapter{
			ID:          ch.ID,
			Chapter:     ch.Attributes.Chapter,
			Title:       ch.Attributes.Title,
			Volume:      ch.Attributes.Volume,
			Pages:       ch.Attributes.Pages,
			Language:    ch.Attributes.TranslatedLanguage,
			Group:       group,
			PublishedAt: ch.Attributes.PublishAt,
			ReadableAt:  ch.Attributes.ReadableAt,
		})
	}
	page := &models.ChapterPage{
		Chapters: chapters,
		Total:    resp.Total,
		Page:     offset/limit + 1,
		PerPage:  limit,
		HasNext:  offset+len(chapters) < resp.Total,
	}
	toCache(ctx, c.cache, key, page, c.cfg.ChaptersTTL)
	return page, nil
}

// ChapterCount reports the total number of feed entries for a work
// without transferring the feed itself.
func (c *Client) ChapterCount(ctx context.Context, id, lang string) (int, error) {
	if lang == "" {
		lang = "en"
	}
	params := url.Values{}
	params.Set("limit", "1")
	params.Add("translatedLanguage[]", lang)

	var resp chapterFeedResponse
	err := c.exec.DoJSON(ctx, upstream.Request{
		Method: "GET",
		URL:    c.baseURL + "/manga/" + url.PathEscape(id) + "/feed?" + params.Encode(),
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("mangadex chapter count %s: %w", id, err)
	}
	return resp.Total, nil
}

// Name implements match.Searcher.
func (c *Client) Name() string { return models.SourceMangaDex }

// SearchCandidates implements match.Searcher over the search endpoint.
func (c *Client) SearchCandidates(ctx context.Context, title string, limit int) ([]models.MangaRecord, error) {
	page, err := c.Search(ctx, title, 1, limit)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// fromCache reads and decodes a cached value.
func fromCache[T any](ctx context.Context, c *cache.Tiered, key string) (*T, bool) {
	return cache.GetJSON[T](ctx, c, key)
}

// staleFromCache serves an expired entry when the live fetch failed for
// availability reasons. Rejected requests are not masked by stale data.
func staleFromCache[T any](ctx context.Context, c *cache.Tiered, key string, fetchErr error, logger *slog.Logger) (*T, bool) {
	if !upstream.Degraded(fetchErr) {
		return nil, false
	}
	v, ok := cache.GetStaleJSON[T](ctx, c, key)
	if !ok {
		return nil, false
	}
	logger.Warn("serving stale cache entry",
		slog.String("key", key),
		slog.String("error", fetchErr.Error()),
	)
	return v, true
}

func toCache[T any](ctx context.Context, c *cache.Tiered, key string, v *T, ttl time.Duration) {
	cache.SetJSON(ctx, c, key, v, ttl, "")
}
