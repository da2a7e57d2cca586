package links

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"manhwahub/pkg/models"
)

type fakeAniList struct {
	records map[int]*models.MangaRecord
	lists   map[string][]models.ListEntry
}

func (f *fakeAniList) Get(ctx context.Context, id int) (*models.MangaRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("no media %d", id)
	}
	return rec, nil
}

func (f *fakeAniList) UserList(ctx context.Context, anilistUserID int, token, ownerID string) (map[string][]models.ListEntry, error) {
	return f.lists, nil
}

type fakeMangaDex struct {
	records map[string]*models.MangaRecord
}

func (f *fakeMangaDex) Get(ctx context.Context, id string) (*models.MangaRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("no manga %s", id)
	}
	return rec, nil
}

// fakeMatcher maps a source record id to a fixed candidate+confidence.
type fakeMatcher struct {
	matches map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}
}

func (f *fakeMatcher) FindBestMatch(ctx context.Context, source models.MangaRecord, titles []string) (*models.MangaRecord, float64) {
	m, ok := f.matches[source.ID]
	if !ok {
		return nil, 0
	}
	return m.rec, m.conf
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(userID string, event any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := event.(Event); ok {
		n.events = append(n.events, e)
	}
}

func (n *recordingNotifier) named(name string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func alRecord(id int, title string) *models.MangaRecord {
	return &models.MangaRecord{ID: strconv.Itoa(id), Source: models.SourceAniList, Title: title}
}

func mdRecord(id, title string) *models.MangaRecord {
	return &models.MangaRecord{ID: id, Source: models.SourceMangaDex, Title: title}
}

func newTestService(t *testing.T, al *fakeAniList, md *fakeMangaDex, m *fakeMatcher, n Notifier) *Service {
	t.Helper()
	db := openTestDB(t)
	insertUser(t, db, "u1")
	logger := slog.New(slog.DiscardHandler)
	return NewService(NewRepository(db), al, md, m, m, n, nil, logger)
}

func TestConnectCreatesManualLink(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(t,
		&fakeAniList{records: map[int]*models.MangaRecord{100: alRecord(100, "Solo Leveling")}},
		&fakeMangaDex{records: map[string]*models.MangaRecord{"md-1": mdRecord("md-1", "Solo Leveling")}},
		&fakeMatcher{}, notifier,
	)

	link, err := svc.Connect(ctx, "u1", 100, "md-1")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !link.ManuallyLinked || link.Confidence != 1.0 {
		t.Errorf("link = %+v", link)
	}

	stored, err := svc.repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.MangaDexID != "md-1" || !stored.ManuallyLinked {
		t.Errorf("stored = %+v", stored)
	}
	if got := notifier.named(EventLinkCreated); len(got) != 1 {
		t.Errorf("link.created events = %d", len(got))
	}
}

func TestConnectUnknownRecordFails(t *testing.T) {
	svc := newTestService(t,
		&fakeAniList{records: map[int]*models.MangaRecord{}},
		&fakeMangaDex{records: map[string]*models.MangaRecord{}},
		&fakeMatcher{}, nil,
	)
	if _, err := svc.Connect(context.Background(), "u1", 100, "md-1"); err == nil {
		t.Fatal("expected error for unknown record")
	}
}

func TestAutoMatchPersistsAboveFloor(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}

	strong := mdRecord("md-strong", "Solo Leveling")
	weak := mdRecord("md-weak", "Tower of God")
	matcher := &fakeMatcher{matches: map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}{
		"100": {rec: strong, conf: 0.95},
		"101": {rec: weak, conf: 0.75}, // above pipeline floor, below link bar
	}}

	svc := newTestService(t,
		&fakeAniList{lists: map[string][]models.ListEntry{
			"reading": {
				{Status: "reading", Media: *alRecord(100, "Solo Leveling")},
				{Status: "reading", Media: *alRecord(101, "Tower of God")},
				{Status: "reading", Media: *alRecord(102, "Nothing Matches This")},
			},
		}},
		&fakeMangaDex{}, matcher, notifier,
	)

	report, err := svc.AutoMatch(ctx, "u1", 42, "tok", 0)
	if err != nil {
		t.Fatalf("auto-match: %v", err)
	}
	if report.Total != 3 || report.Matched != 1 || report.Unmatched != 2 {
		t.Fatalf("report = %+v", report)
	}

	stored, err := svc.repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get persisted link: %v", err)
	}
	if stored.MangaDexID != "md-strong" || stored.ManuallyLinked || stored.Confidence != 0.95 {
		t.Errorf("persisted = %+v", stored)
	}
	if _, err := svc.repo.GetByAniListID(ctx, "u1", "101"); !IsNotFound(err) {
		t.Errorf("below-bar candidate persisted: %v", err)
	}

	if got := notifier.named(EventAutoMatchProgress); len(got) != 3 {
		t.Errorf("progress events = %d, want one per entry", len(got))
	}
	if got := notifier.named(EventAutoMatchDone); len(got) != 1 {
		t.Errorf("done events = %d", len(got))
	}
}

func TestAutoMatchSkipsManualLinks(t *testing.T) {
	ctx := context.Background()
	matcher := &fakeMatcher{matches: map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}{
		"100": {rec: mdRecord("md-wrong", "Solo Leveling"), conf: 0.99},
	}}

	svc := newTestService(t,
		&fakeAniList{lists: map[string][]models.ListEntry{
			"reading": {{Status: "reading", Media: *alRecord(100, "Solo Leveling")}},
		}},
		&fakeMangaDex{}, matcher, nil,
	)

	manual := testLink("u1", "100", true)
	manual.MangaDexID = "md-chosen"
	if err := svc.repo.Upsert(ctx, manual); err != nil {
		t.Fatalf("seed manual link: %v", err)
	}

	report, err := svc.AutoMatch(ctx, "u1", 42, "tok", 0)
	if err != nil {
		t.Fatalf("auto-match: %v", err)
	}
	if report.Skipped != 1 || report.Matched != 0 {
		t.Fatalf("report = %+v", report)
	}

	stored, err := svc.repo.GetByAniListID(ctx, "u1", "100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.MangaDexID != "md-chosen" {
		t.Errorf("manual link rewritten to %s", stored.MangaDexID)
	}
}

func TestAutoMatchCustomFloor(t *testing.T) {
	matcher := &fakeMatcher{matches: map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}{
		"101": {rec: mdRecord("md-weak", "Tower of God"), conf: 0.75},
	}}

	svc := newTestService(t,
		&fakeAniList{lists: map[string][]models.ListEntry{
			"reading": {{Status: "reading", Media: *alRecord(101, "Tower of God")}},
		}},
		&fakeMangaDex{}, matcher, nil,
	)

	report, err := svc.AutoMatch(context.Background(), "u1", 42, "tok", 0.70)
	if err != nil {
		t.Fatalf("auto-match: %v", err)
	}
	if report.Matched != 1 {
		t.Fatalf("report = %+v, want the lowered bar to admit 0.75", report)
	}
}

func TestAnnotatedListAttachesLinks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t,
		&fakeAniList{lists: map[string][]models.ListEntry{
			"reading": {
				{Status: "reading", Media: *alRecord(100, "Solo Leveling")},
				{Status: "reading", Media: *alRecord(101, "Tower of God")},
			},
		}},
		&fakeMangaDex{}, &fakeMatcher{}, nil,
	)

	if err := svc.repo.Upsert(ctx, testLink("u1", "100", true)); err != nil {
		t.Fatalf("seed link: %v", err)
	}

	grouped, err := svc.AnnotatedList(ctx, "u1", 42, "tok")
	if err != nil {
		t.Fatalf("annotated list: %v", err)
	}

	reading := grouped["reading"]
	if len(reading) != 2 {
		t.Fatalf("reading entries = %d", len(reading))
	}
	byID := map[string]models.ListEntry{}
	for _, e := range reading {
		byID[e.Media.ID] = e
	}
	if e := byID["100"]; !e.IsLinked || e.Link == nil || e.Link.MangaDexID != "md-100" {
		t.Errorf("linked entry = %+v", e)
	}
	if e := byID["101"]; e.IsLinked || e.Link != nil {
		t.Errorf("unlinked entry = %+v", e)
	}
}

func TestAddByMangaDexLinksBestCandidate(t *testing.T) {
	ctx := context.Background()
	matcher := &fakeMatcher{matches: map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}{
		"md-1": {rec: alRecord(100, "Solo Leveling"), conf: 0.95},
	}}

	svc := newTestService(t,
		&fakeAniList{},
		&fakeMangaDex{records: map[string]*models.MangaRecord{"md-1": mdRecord("md-1", "Solo Leveling")}},
		matcher, nil,
	)

	link, err := svc.AddByMangaDex(ctx, "u1", "md-1", 0)
	if err != nil {
		t.Fatalf("add by mangadex: %v", err)
	}
	if link.AniListID != "100" || link.ManuallyLinked || link.Confidence != 0.95 {
		t.Errorf("link = %+v", link)
	}
	if _, err := svc.repo.GetByAniListID(ctx, "u1", "100"); err != nil {
		t.Errorf("link not persisted: %v", err)
	}
}

func TestAddByMangaDexBelowBarIsNoMatch(t *testing.T) {
	matcher := &fakeMatcher{matches: map[string]struct {
		rec  *models.MangaRecord
		conf float64
	}{
		"md-1": {rec: alRecord(100, "Solo Leveling"), conf: 0.80},
	}}

	svc := newTestService(t,
		&fakeAniList{},
		&fakeMangaDex{records: map[string]*models.MangaRecord{"md-1": mdRecord("md-1", "Solo Leveling")}},
		matcher, nil,
	)

	_, err := svc.AddByMangaDex(context.Background(), "u1", "md-1", 0)
	if !IsNoMatch(err) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
}

func TestUnlinkRemovesAndNotifies(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(t, &fakeAniList{}, &fakeMangaDex{}, &fakeMatcher{}, notifier)

	if err := svc.repo.Upsert(ctx, testLink("u1", "100", false)); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	if err := svc.Unlink(ctx, "u1", "100"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := svc.repo.GetByAniListID(ctx, "u1", "100"); !IsNotFound(err) {
		t.Fatalf("link still present: %v", err)
	}
	if got := notifier.named(EventLinkRemoved); len(got) != 1 {
		t.Errorf("link.removed events = %d", len(got))
	}
}
