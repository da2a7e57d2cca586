package links

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"manhwahub/pkg/database"
	"manhwahub/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "links.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, ?)`,
		id, "user-"+id, id+"@example.com", "x",
	)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func testLink(userID, anilistID string, manual bool) *models.Link {
	return &models.Link{
		ID:             "link-" + userID + "-" + anilistID,
		UserID:         userID,
		AniListID:      anilistID,
		MangaDexID:     "md-" + anilistID,
		AniListData:    models.MangaRecord{ID: anilistID, Source: models.SourceAniList, Title: "T"},
		MangaDexData:   models.MangaRecord{ID: "md-" + anilistID, Source: models.SourceMangaDex, Title: "T"},
		Confidence:     0.9,
		ManuallyLinked: manual,
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	repo := NewRepository(db)

	if err := repo.Upsert(ctx, testLink("u1", "100", false)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MangaDexID != "md-100" || got.Confidence != 0.9 || got.ManuallyLinked {
		t.Errorf("link = %+v", got)
	}
	if got.AniListData.Source != models.SourceAniList {
		t.Errorf("anilist data = %+v", got.AniListData)
	}
}

func TestUpsertRefreshesAutomaticLink(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	repo := NewRepository(db)

	if err := repo.Upsert(ctx, testLink("u1", "100", false)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	update := testLink("u1", "100", false)
	update.MangaDexID = "md-other"
	update.Confidence = 0.95
	if err := repo.Upsert(ctx, update); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MangaDexID != "md-other" || got.Confidence != 0.95 {
		t.Errorf("automatic link not refreshed: %+v", got)
	}
}

func TestManualLinkSurvivesAutomaticRewrite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	repo := NewRepository(db)

	manual := testLink("u1", "100", true)
	manual.Confidence = 1.0
	if err := repo.Upsert(ctx, manual); err != nil {
		t.Fatalf("manual upsert: %v", err)
	}

	auto := testLink("u1", "100", false)
	auto.MangaDexID = "md-wrong"
	auto.Confidence = 0.86
	if err := repo.Upsert(ctx, auto); err != nil {
		t.Fatalf("auto upsert: %v", err)
	}

	got, err := repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MangaDexID != "md-100" || !got.ManuallyLinked || got.Confidence != 1.0 {
		t.Errorf("manual link was rewritten: %+v", got)
	}
}

func TestManualRelinkOverwritesManual(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	repo := NewRepository(db)

	if err := repo.Upsert(ctx, testLink("u1", "100", true)); err != nil {
		t.Fatalf("first manual upsert: %v", err)
	}

	relink := testLink("u1", "100", true)
	relink.MangaDexID = "md-corrected"
	if err := repo.Upsert(ctx, relink); err != nil {
		t.Fatalf("second manual upsert: %v", err)
	}

	got, err := repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MangaDexID != "md-corrected" {
		t.Errorf("manual relink did not apply: %+v", got)
	}
}

func TestListAndCountByUser(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	insertUser(t, db, "u2")
	repo := NewRepository(db)

	for _, id := range []string{"100", "101", "102"} {
		if err := repo.Upsert(ctx, testLink("u1", id, false)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if err := repo.Upsert(ctx, testLink("u2", "100", false)); err != nil {
		t.Fatalf("upsert other user: %v", err)
	}

	n, err := repo.CountByUser(ctx, "u1")
	if err != nil || n != 3 {
		t.Fatalf("count = %d, err = %v", n, err)
	}

	page, err := repo.ListByUser(ctx, "u1", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d", len(page))
	}

	all, err := repo.MapByAniListID(ctx, "u1")
	if err != nil || len(all) != 3 {
		t.Fatalf("map = %d entries, err = %v", len(all), err)
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	repo := NewRepository(db)

	if err := repo.Delete(ctx, "u1", "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByAniListID(ctx, "u1", "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
