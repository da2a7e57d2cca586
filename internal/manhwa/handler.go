// Package manhwa exposes the catalog browsing routes: cross-catalog
// search, discovery rails, details and chapter feeds.
package manhwa

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"manhwahub/internal/search"
	"manhwahub/internal/upstream"
	"manhwahub/pkg/models"
)

// Searcher is the merged cross-catalog search surface.
type Searcher interface {
	Search(ctx context.Context, p search.Params) (*models.SearchPage, error)
}

// Discovery serves the AniList-backed trending/popular rails.
type Discovery interface {
	Get(ctx context.Context, id int) (*models.MangaRecord, error)
	Trending(ctx context.Context, page, perPage int) (*models.SearchPage, error)
	Popular(ctx context.Context, page, perPage int) (*models.SearchPage, error)
}

// ChapterSource serves MangaDex details and chapter feeds.
type ChapterSource interface {
	Get(ctx context.Context, id string) (*models.MangaRecord, error)
	WithStats(ctx context.Context, records []models.MangaRecord) []models.MangaRecord
	Chapters(ctx context.Context, id, lang string, limit, offset int) (*models.ChapterPage, error)
}

type Handler struct {
	Search   Searcher
	AniList  Discovery
	MangaDex ChapterSource
}

func NewHandler(searcher Searcher, anilist Discovery, mangadex ChapterSource) *Handler {
	return &Handler{Search: searcher, AniList: anilist, MangaDex: mangadex}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search)
	rg.GET("/trending", h.trending)
	rg.GET("/popular", h.popular)
	rg.GET("/:id", h.details)
	rg.GET("/:id/chapters", h.chapters)
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter required"})
		return
	}

	params := search.Params{
		Query:   query,
		Page:    intQuery(c, "page", 1),
		PerPage: intQuery(c, "per_page", 20),
		Sort:    c.DefaultQuery("sort", search.SortRelevance),
		Filters: search.Filters{
			MinChapters: intQuery(c, "min_chapters", 0),
			MaxChapters: intQuery(c, "max_chapters", 0),
			MinRating:   floatQuery(c, "min_rating", 0),
			Status:      c.Query("status"),
			YearFrom:    intQuery(c, "year_from", 0),
			YearTo:      intQuery(c, "year_to", 0),
		},
	}

	page, err := h.Search.Search(c.Request.Context(), params)
	if err != nil {
		upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) trending(c *gin.Context) {
	h.rail(c, h.AniList.Trending)
}

func (h *Handler) popular(c *gin.Context) {
	h.rail(c, h.AniList.Popular)
}

func (h *Handler) rail(c *gin.Context, fetch func(ctx context.Context, page, perPage int) (*models.SearchPage, error)) {
	page, err := fetch(c.Request.Context(), intQuery(c, "page", 1), intQuery(c, "per_page", 20))
	if err != nil {
		upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// details resolves either catalog's identifier: AniList ids are
// numeric, MangaDex ids are UUIDs.
func (h *Handler) details(c *gin.Context) {
	id := c.Param("id")

	if numeric, err := strconv.Atoi(id); err == nil {
		rec, err := h.AniList.Get(c.Request.Context(), numeric)
		if err != nil {
			upstreamError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	rec, err := h.MangaDex.Get(c.Request.Context(), id)
	if err != nil {
		upstreamError(c, err)
		return
	}
	enriched := h.MangaDex.WithStats(c.Request.Context(), []models.MangaRecord{*rec})
	c.JSON(http.StatusOK, enriched[0])
}

func (h *Handler) chapters(c *gin.Context) {
	id := c.Param("id")
	if _, err := strconv.Atoi(id); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chapters are served for mangadex ids only"})
		return
	}

	perPage := intQuery(c, "per_page", 50)
	page := intQuery(c, "page", 1)
	feed, err := h.MangaDex.Chapters(
		c.Request.Context(), id,
		c.DefaultQuery("lang", "en"),
		perPage, (page-1)*perPage,
	)
	if err != nil {
		upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// upstreamError maps the error taxonomy onto response codes: rejected
// lookups are 404s, exhausted upstreams are 502s, everything else 500.
func upstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, upstream.ErrRejected):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, upstream.ErrUnavailable), errors.Is(err, upstream.ErrRateLimited):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream catalog unavailable"})
	case errors.Is(err, upstream.ErrMalformedPayload):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream catalog returned malformed data"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatQuery(c *gin.Context, key string, def float64) float64 {
	v := c.Query(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
