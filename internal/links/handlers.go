package links

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"manhwahub/internal/anilist"
	"manhwahub/internal/auth"
	"manhwahub/internal/upstream"
)

// UserSource resolves the authenticated user's stored AniList identity.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
}

// ListWriter pushes a list entry to AniList after a reverse match.
type ListWriter interface {
	SaveListEntry(ctx context.Context, token string, mediaID int, status string, progress int, score float64) error
}

// Handler exposes link management and the user list routes.
type Handler struct {
	Service *Service
	Users   UserSource
	Lists   ListWriter
	Logger  *slog.Logger
}

func NewHandler(svc *Service, users UserSource, lists ListWriter, logger *slog.Logger) *Handler {
	return &Handler{Service: svc, Users: users, Lists: lists, Logger: logger}
}

// RegisterRoutes mounts the link routes on the catalog group and the
// list routes on the users group. Both groups must already carry the
// auth middleware.
func (h *Handler) RegisterRoutes(manhwa, users *gin.RouterGroup) {
	manhwa.POST("/connect", h.connect)
	manhwa.DELETE("/connect/:id", h.unlink)
	manhwa.POST("/anilist/add", h.anilistAdd)

	users.GET("/:id/lists", h.lists)
	users.POST("/:id/sync", h.sync)
	users.POST("/:id/auto-match", h.autoMatch)
	users.GET("/:id/connections", h.connections)
}

type connectRequest struct {
	AniListID  int    `json:"anilist_id" binding:"required"`
	MangaDexID string `json:"mangadex_id" binding:"required"`
}

func (h *Handler) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anilist_id and mangadex_id required"})
		return
	}

	link, err := h.Service.Connect(c.Request.Context(), auth.UserID(c), req.AniListID, req.MangaDexID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (h *Handler) unlink(c *gin.Context) {
	err := h.Service.Unlink(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "link removed"})
}

type anilistAddRequest struct {
	MangaDexID    string  `json:"mangadex_id" binding:"required"`
	MinConfidence float64 `json:"min_confidence"`
}

func (h *Handler) anilistAdd(c *gin.Context) {
	var req anilistAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mangadex_id required"})
		return
	}

	userID := auth.UserID(c)
	link, err := h.Service.AddByMangaDex(c.Request.Context(), userID, req.MangaDexID, req.MinConfidence)
	if err != nil {
		if IsNoMatch(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.serviceError(c, err)
		return
	}

	// Best effort; the link is already persisted locally.
	if h.Lists != nil {
		if u, uerr := h.Users.GetByID(c.Request.Context(), userID); uerr == nil && u != nil && u.AniListToken != "" {
			mediaID, _ := strconv.Atoi(link.AniListID)
			if werr := h.Lists.SaveListEntry(c.Request.Context(), u.AniListToken, mediaID, anilist.StatusPlanToRead, 0, 0); werr != nil {
				h.Logger.Warn("push list entry to anilist",
					slog.String("user_id", userID),
					slog.String("anilist_id", link.AniListID),
					slog.Any("error", werr))
			}
		}
	}

	c.JSON(http.StatusCreated, link)
}

func (h *Handler) lists(c *gin.Context) {
	userID, u, ok := h.linkedUser(c)
	if !ok {
		return
	}
	anilistUserID, _ := strconv.Atoi(u.AniListID)

	grouped, err := h.Service.AnnotatedList(c.Request.Context(), userID, anilistUserID, u.AniListToken)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	if status := c.Query("status"); status != "" {
		group, ok := grouped[status]
		if !ok {
			c.JSON(http.StatusOK, gin.H{"lists": gin.H{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lists": gin.H{status: group}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": grouped})
}

func (h *Handler) sync(c *gin.Context) {
	userID, u, ok := h.linkedUser(c)
	if !ok {
		return
	}
	anilistUserID, _ := strconv.Atoi(u.AniListID)

	grouped, err := h.Service.Sync(c.Request.Context(), userID, anilistUserID, u.AniListToken)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": grouped, "synced": true})
}

type autoMatchRequest struct {
	MinConfidence float64 `json:"min_confidence"`
}

func (h *Handler) autoMatch(c *gin.Context) {
	userID, u, ok := h.linkedUser(c)
	if !ok {
		return
	}
	anilistUserID, _ := strconv.Atoi(u.AniListID)

	var req autoMatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	report, err := h.Service.AutoMatch(c.Request.Context(), userID, anilistUserID, u.AniListToken, req.MinConfidence)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) connections(c *gin.Context) {
	userID, ok := h.ownUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	linksOut, total, err := h.Service.Connections(c.Request.Context(), userID, page, perPage)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connections": linksOut,
		"total":       total,
		"page":        page,
		"per_page":    perPage,
	})
}

// ownUserID resolves the :id path segment, which must be "me" or the
// authenticated user's own id.
func (h *Handler) ownUserID(c *gin.Context) (string, bool) {
	userID := auth.UserID(c)
	if id := c.Param("id"); id != "me" && id != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot access another user's data"})
		return "", false
	}
	return userID, true
}

// linkedUser additionally requires a connected AniList account.
func (h *Handler) linkedUser(c *gin.Context) (string, *auth.User, bool) {
	userID, ok := h.ownUserID(c)
	if !ok {
		return "", nil, false
	}
	u, err := h.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return "", nil, false
	}
	if u == nil {
		// token outlived the account
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return "", nil, false
	}
	if u.AniListID == "" || u.AniListToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no anilist account linked"})
		return "", nil, false
	}
	return userID, u, true
}

func (h *Handler) serviceError(c *gin.Context, err error) {
	switch {
	case IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
	case errors.Is(err, upstream.ErrRejected):
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found upstream"})
	case errors.Is(err, upstream.ErrRateLimited), errors.Is(err, upstream.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream catalog unavailable"})
	case errors.Is(err, upstream.ErrMalformedPayload):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream returned an invalid response"})
	default:
		h.Logger.Error("link operation failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
