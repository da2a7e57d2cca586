// Package anilist is the AniList GraphQL catalog client. All operations
// go through a single POST endpoint; reads are cached in the two-tier
// cache and degrade to stale entries when the upstream is down.
package anilist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"manhwahub/internal/cache"
	"manhwahub/internal/upstream"
	"manhwahub/pkg/models"
	"manhwahub/pkg/utils"
)

const keyPrefix = "anilist"

// oauthTokenURL is fixed by AniList; only the API URL is configurable.
const oauthTokenURL = "https://anilist.co/api/v2/oauth/token"

type Client struct {
	apiURL string
	exec   *upstream.Executor
	cache  *cache.Tiered
	cfg    utils.UpstreamConfig
	logger *slog.Logger
}

func NewClient(cfg utils.UpstreamConfig, exec *upstream.Executor, tiered *cache.Tiered, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL: cfg.AniListURL,
		exec:   exec,
		cache:  tiered,
		cfg:    cfg,
		logger: logger,
	}
}

// query posts one GraphQL document. A non-empty token is attached as a
// bearer header for authenticated operations.
func query[T any](ctx context.Context, c *Client, doc string, variables map[string]any, token string) (*T, error) {
	body, err := json.Marshal(map[string]any{
		"query":     doc,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var resp gqlResponse[T]
	err = c.exec.DoJSON(ctx, upstream.Request{
		Method: "POST",
		URL:    c.apiURL,
		Header: header,
		Body:   body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		if first.Status == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: anilist: %s", upstream.ErrRateLimited, first.Message)
		}
		return nil, fmt.Errorf("%w: anilist: %s", upstream.ErrRejected, first.Message)
	}
	return &resp.Data, nil
}

// Search queries the catalog by title.
func (c *Client) Search(ctx context.Context, search string, page, perPage int) (*models.SearchPage, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}

	key := cache.Key(keyPrefix, "search", search, strconv.Itoa(page), strconv.Itoa(perPage))
	if cached, ok := cache.GetJSON[models.SearchPage](ctx, c.cache, key); ok {
		return cached, nil
	}

	data, err := query[pageData](ctx, c, searchQuery, map[string]any{
		"search": search, "page": page, "perPage": perPage,
	}, "")
	if err != nil {
		if v, ok := stale[models.SearchPage](ctx, c, key, err); ok {
			v.Stale = true
			return v, nil
		}
		return nil, fmt.Errorf("anilist search %q: %w", search, err)
	}

	result := pageToSearchPage(data, page, perPage)
	cache.SetJSON(ctx, c.cache, key, result, c.cfg.SearchTTL, "")
	return result, nil
}

// Get fetches one work by its AniList numeric id.
func (c *Client) Get(ctx context.Context, id int) (*models.MangaRecord, error) {
	key := cache.Key(keyPrefix, "media", strconv.Itoa(id))
	if cached, ok := cache.GetJSON[models.MangaRecord](ctx, c.cache, key); ok {
		return cached, nil
	}

	data, err := query[mediaData](ctx, c, detailsQuery, map[string]any{"id": id}, "")
	if err != nil {
		if v, ok := stale[models.MangaRecord](ctx, c, key, err); ok {
			return v, nil
		}
		return nil, fmt.Errorf("anilist media %d: %w", id, err)
	}
	if data.Media == nil {
		return nil, fmt.Errorf("anilist media %d: %w: empty media", id, upstream.ErrMalformedPayload)
	}

	rec := data.Media.toRecord()
	cache.SetJSON(ctx, c.cache, key, &rec, c.cfg.DetailsTTL, "")
	return &rec, nil
}

// Trending returns the currently trending manga page.
func (c *Client) Trending(ctx context.Context, page, perPage int) (*models.SearchPage, error) {
	return c.discovery(ctx, "trending", trendingQuery, page, perPage)
}

// Popular returns the all-time popularity ranking page.
func (c *Client) Popular(ctx context.Context, page, perPage int) (*models.SearchPage, error) {
	return c.discovery(ctx, "popular", popularQuery, page, perPage)
}

func (c *Client) discovery(ctx context.Context, kind, doc string, page, perPage int) (*models.SearchPage, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	key := cache.Key(keyPrefix, kind, strconv.Itoa(page), strconv.Itoa(perPage))
	if cached, ok := cache.GetJSON[models.SearchPage](ctx, c.cache, key); ok {
		return cached, nil
	}

	data, err := query[pageData](ctx, c, doc, map[string]any{"page": page, "perPage": perPage}, "")
	if err != nil {
		if v, ok := stale[models.SearchPage](ctx, c, key, err); ok {
			v.Stale = true
			return v, nil
		}
		return nil, fmt.Errorf("anilist %s: %w", kind, err)
	}

	result := pageToSearchPage(data, page, perPage)
	cache.SetJSON(ctx, c.cache, key, result, c.cfg.SearchTTL, "")
	return result, nil
}

// UserList fetches a user's manga lists grouped by reading status.
// ownerID scopes the cache entry so a sync can invalidate it.
func (c *Client) UserList(ctx context.Context, anilistUserID int, token, ownerID string) (map[string][]models.ListEntry, error) {
	key := cache.Key(keyPrefix, "user", ownerID, "list", strconv.Itoa(anilistUserID))
	if cached, ok := cache.GetJSON[map[string][]models.ListEntry](ctx, c.cache, key); ok {
		return *cached, nil
	}

	data, err := query[listCollectionData](ctx, c, userListQuery, map[string]any{"userId": anilistUserID}, token)
	if err != nil {
		if v, ok := stale[map[string][]models.ListEntry](ctx, c, key, err); ok {
			return *v, nil
		}
		return nil, fmt.Errorf("anilist user list %d: %w", anilistUserID, err)
	}

	grouped := make(map[string][]models.ListEntry)
	for _, list := range data.MediaListCollection.Lists {
		for _, e := range list.Entries {
			status := FromListStatus(e.Status)
			grouped[status] = append(grouped[status], models.ListEntry{
				Status:   status,
				Progress: e.Progress,
				Score:    e.Score,
				Media:    e.Media.toRecord(),
			})
		}
	}
	cache.SetJSON(ctx, c.cache, key, &grouped, c.cfg.UserListTTL, ownerID)
	return grouped, nil
}

// SaveListEntry writes one list entry back to AniList. Not cached; the
// caller invalidates the user's list scope afterwards.
func (c *Client) SaveListEntry(ctx context.Context, token string, mediaID int, status string, progress int, score float64) error {
	vars := map[string]any{
		"mediaId":  mediaID,
		"status":   ToListStatus(status),
		"progress": progress,
	}
	if score > 0 {
		vars["score"] = score
	}
	if _, err := query[saveEntryData](ctx, c, saveEntryMutation, vars, token); err != nil {
		return fmt.Errorf("anilist save entry %d: %w", mediaID, err)
	}
	return nil
}

// Viewer identifies the user a token belongs to.
func (c *Client) Viewer(ctx context.Context, token string) (int, string, error) {
	data, err := query[viewerData](ctx, c, viewerQuery, nil, token)
	if err != nil {
		return 0, "", fmt.Errorf("anilist viewer: %w", err)
	}
	if data.Viewer == nil {
		return 0, "", fmt.Errorf("anilist viewer: %w: empty viewer", upstream.ErrMalformedPayload)
	}
	return data.Viewer.ID, data.Viewer.Name, nil
}

// ExchangeCode trades an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.cfg.OAuthClientID,
		"client_secret": c.cfg.OAuthClientSecret,
		"redirect_uri":  c.cfg.OAuthRedirectURI,
		"code":          code,
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	err = c.exec.DoJSON(ctx, upstream.Request{
		Method: "POST",
		URL:    oauthTokenURL,
		Header: header,
		Body:   body,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("anilist token exchange: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("anilist token exchange: %w: empty access token", upstream.ErrMalformedPayload)
	}
	return resp.AccessToken, nil
}

// Name implements match.Searcher.
func (c *Client) Name() string { return models.SourceAniList }

// SearchCandidates implements match.Searcher over the search endpoint.
func (c *Client) SearchCandidates(ctx context.Context, title string, limit int) ([]models.MangaRecord, error) {
	page, err := c.Search(ctx, title, 1, limit)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// stale serves an expired cache entry when the live fetch failed for
// availability reasons. Rejections are real answers and never masked.
func stale[T any](ctx context.Context, c *Client, key string, fetchErr error) (*T, bool) {
	if !upstream.Degraded(fetchErr) {
		return nil, false
	}
	v, ok := cache.GetStaleJSON[T](ctx, c.cache, key)
	if !ok {
		return nil, false
	}
	c.logger.Warn("serving stale cache entry",
		slog.String("key", key),
		slog.String("error", fetchErr.Error()),
	)
	return v, true
}

func pageToSearchPage(data *pageData, page, perPage int) *models.SearchPage {
	records := make([]models.MangaRecord, 0, len(data.Page.Media))
	for _, m := range data.Page.Media {
		records = append(records, m.toRecord())
	}
	return &models.SearchPage{
		Results: records,
		Total:   data.Page.PageInfo.Total,
		Page:    page,
		PerPage: perPage,
		HasNext: data.Page.PageInfo.HasNextPage,
	}
}
