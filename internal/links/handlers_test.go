package links

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"manhwahub/internal/auth"
	"manhwahub/pkg/models"
)

type fakeUsers struct {
	user *auth.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*auth.User, error) {
	return f.user, nil
}

type fakeListWriter struct {
	mu      sync.Mutex
	mediaID int
	status  string
}

func (f *fakeListWriter) SaveListEntry(ctx context.Context, token string, mediaID int, status string, progress int, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaID = mediaID
	f.status = status
	return nil
}

func linkedTestUser() *auth.User {
	return &auth.User{ID: "u1", AniListID: "7", AniListToken: "tok"}
}

func newTestRouter(t *testing.T, svc *Service, users UserSource, lists ListWriter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.CtxClaimsKey, &auth.Claims{UserID: "u1"})
	})
	h := NewHandler(svc, users, lists, slog.New(slog.DiscardHandler))
	h.RegisterRoutes(r.Group("/manhwa"), r.Group("/users"))
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConnectEndpointCreatesLink(t *testing.T) {
	svc := newTestService(t,
		&fakeAniList{records: map[int]*models.MangaRecord{100: alRecord(100, "Solo Leveling")}},
		&fakeMangaDex{records: map[string]*models.MangaRecord{"md-1": mdRecord("md-1", "Solo Leveling")}},
		&fakeMatcher{}, nil,
	)
	r := newTestRouter(t, svc, &fakeUsers{user: linkedTestUser()}, nil)

	w := doRequest(t, r, http.MethodPost, "/manhwa/connect",
		`{"anilist_id":100,"mangadex_id":"md-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if _, err := svc.repo.GetByAniListID(context.Background(), "u1", "100"); err != nil {
		t.Errorf("link not stored: %v", err)
	}
}

func TestConnectEndpointValidatesBody(t *testing.T) {
	svc := newTestService(t, &fakeAniList{}, &fakeMangaDex{}, &fakeMatcher{}, nil)
	r := newTestRouter(t, svc, &fakeUsers{user: linkedTestUser()}, nil)

	w := doRequest(t, r, http.MethodPost, "/manhwa/connect", `{"anilist_id":100}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestConnectionsRejectOtherUsers(t *testing.T) {
	svc := newTestService(t, &fakeAniList{}, &fakeMangaDex{}, &fakeMatcher{}, nil)
	r := newTestRouter(t, svc, &fakeUsers{user: linkedTestUser()}, nil)

	if w := doRequest(t, r, http.MethodGet, "/users/u2/connections", ""); w.Code != http.StatusForbidden {
		t.Errorf("other user status = %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodGet, "/users/me/connections", ""); w.Code != http.StatusOK {
		t.Errorf("me status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestAnilistAddPushesListEntry(t *testing.T) {
	matcher := &fakeMatcher{matches: map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}{
		"md-1": {rec: alRecord(100, "Solo Leveling"), conf: 0.92},
	}}
	svc := newTestService(t,
		&fakeAniList{},
		&fakeMangaDex{records: map[string]*models.MangaRecord{"md-1": mdRecord("md-1", "Solo Leveling")}},
		matcher, nil,
	)
	writer := &fakeListWriter{}
	r := newTestRouter(t, svc, &fakeUsers{user: linkedTestUser()}, writer)

	w := doRequest(t, r, http.MethodPost, "/manhwa/anilist/add", `{"mangadex_id":"md-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if writer.mediaID != 100 || writer.status != "plan_to_read" {
		t.Errorf("list push = %d/%q", writer.mediaID, writer.status)
	}
}

func TestListsRejectTokenForDeletedUser(t *testing.T) {
	svc := newTestService(t, &fakeAniList{}, &fakeMangaDex{}, &fakeMatcher{}, nil)
	// GetByID reports an absent row as (nil, nil).
	r := newTestRouter(t, svc, &fakeUsers{user: nil}, nil)

	w := doRequest(t, r, http.MethodGet, "/users/me/lists", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestListsRequireLinkedAccount(t *testing.T) {
	svc := newTestService(t, &fakeAniList{}, &fakeMangaDex{}, &fakeMatcher{}, nil)
	r := newTestRouter(t, svc, &fakeUsers{user: &auth.User{ID: "u1"}}, nil)

	w := doRequest(t, r, http.MethodGet, "/users/me/lists", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}
