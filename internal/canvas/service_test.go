package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumecanvas/internal/database"
	"resumecanvas/internal/layout"
	"resumecanvas/internal/resume"
)

type memorySessions struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemorySessions() *memorySessions {
	return &memorySessions{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memorySessions) Load(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, ErrSessionMissing
	}
	return v, nil
}

func (m *memorySessions) Store(_ context.Context, key string, state []byte, ttl time.Duration) error {
	m.data[key] = state
	m.ttls[key] = ttl
	return nil
}

func (m *memorySessions) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type fakeRepo struct {
	content resume.Content
	stored  layout.Document
	saved   []layout.Document
	saveErr error
	missing bool
}

func (r *fakeRepo) LoadResume(_ context.Context, _, _ uint) (resume.Content, layout.Document, error) {
	if r.missing {
		return resume.Content{}, layout.Document{}, ErrResumeNotFound
	}
	return r.content, r.stored, nil
}

func (r *fakeRepo) SaveLayout(_ context.Context, _, _ uint, doc layout.Document) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, doc)
	r.stored = doc
	return nil
}

func testContent() resume.Content {
	return resume.Content{
		PersonalInfo: resume.PersonalInfo{FullName: "Jane Doe"},
		Experience: []resume.Experience{{
			Position: "Engineer", Company: "Acme", StartDate: "2020-01", EndDate: "2022-01", Description: "Built things",
		}},
	}
}

func ptr(v float64) *float64 { return &v }

func TestOpenGeneratesLayout(t *testing.T) {
	repo := &fakeRepo{content: testContent(), stored: layout.EmptyDocument()}
	sessions := newMemorySessions()
	svc := NewService(repo, sessions, Options{SessionTTL: time.Minute})

	view, err := svc.Open(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if view.Phase != layout.PhaseUninitialized || len(view.Layout.Sections) != 3 || view.Zoom != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, ok := sessions.data["canvas:session:1:7"]; !ok {
		t.Fatal("expected session to be stored")
	}
	if sessions.ttls["canvas:session:1:7"] != time.Minute {
		t.Fatalf("unexpected ttl %s", sessions.ttls["canvas:session:1:7"])
	}
}

func TestApplyDragAndSave(t *testing.T) {
	repo := &fakeRepo{content: testContent(), stored: layout.EmptyDocument()}
	var savedHook int
	svc := NewService(repo, newMemorySessions(), Options{
		OnSaved: func(context.Context, uint, uint) { savedHook++ },
	})
	ctx := context.Background()

	if _, err := svc.Open(ctx, 1, 7); err != nil {
		t.Fatalf("open: %v", err)
	}

	view, err := svc.Apply(ctx, 1, 7, []layout.Action{
		{Type: layout.ActionDragEnd, ID: "text-0", X: ptr(100), Y: ptr(200)},
		{Type: layout.ActionZoomIn},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !view.Dirty || view.Zoom != 1.1 {
		t.Fatalf("unexpected view after drag %+v", view)
	}

	view, err = svc.Apply(ctx, 1, 7, []layout.Action{{Type: layout.ActionSave}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if view.Phase != layout.PhasePersisted || view.Dirty {
		t.Fatalf("expected persisted clean view, got %+v", view)
	}
	if len(repo.saved) != 1 || savedHook != 1 {
		t.Fatalf("expected one save, got %d (hook %d)", len(repo.saved), savedHook)
	}
	s := repo.saved[0].Sections[0]
	if *s.X != 100 || *s.Y != 200 {
		t.Fatalf("expected dragged position saved, got %+v", s)
	}

	// 重新打开时使用持久化布局，而不是重新生成。
	view, err = svc.Open(ctx, 1, 7)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if view.Phase != layout.PhasePersisted || *view.Layout.Sections[0].X != 100 || view.Zoom != 1 {
		t.Fatalf("unexpected reopened view %+v", view)
	}
}

func TestApplySaveFailureKeepsSession(t *testing.T) {
	repo := &fakeRepo{content: testContent(), stored: layout.EmptyDocument(), saveErr: errors.New("db down")}
	sessions := newMemorySessions()
	svc := NewService(repo, sessions, Options{})
	ctx := context.Background()

	_, err := svc.Apply(ctx, 1, 7, []layout.Action{
		{Type: layout.ActionDragEnd, ID: "text-1", X: ptr(5), Y: ptr(6)},
		{Type: layout.ActionSave},
	})
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("expected ErrSaveFailed, got %v", err)
	}

	repo.saveErr = nil
	view, err := svc.Apply(ctx, 1, 7, []layout.Action{{Type: layout.ActionSave}})
	if err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if *view.Layout.Sections[1].X != 5 || *repo.saved[0].Sections[1].Y != 6 {
		t.Fatalf("expected local edits to survive failed save, got %+v", view.Layout.Sections[1])
	}
}

func TestApplySaveRejectsInvalidLayout(t *testing.T) {
	stored := layout.EmptyDocument()
	stored.Sections = []layout.Section{
		{Type: layout.SectionTypeText, X: ptr(10), Y: ptr(10), Width: ptr(-5), Text: "Jane"},
	}
	repo := &fakeRepo{content: testContent(), stored: stored}
	svc := NewService(repo, newMemorySessions(), Options{})

	view, err := svc.Apply(context.Background(), 1, 7, []layout.Action{{Type: layout.ActionSave}})
	if !errors.Is(err, layout.ErrInvalidWidth) {
		t.Fatalf("expected ErrInvalidWidth, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("invalid layout must not be persisted, got %d saves", len(repo.saved))
	}
	if view.Phase != layout.PhasePersisted || len(view.Layout.Sections) != 1 {
		t.Fatalf("expected session view to survive, got %+v", view)
	}
}

func TestApplyMissingResume(t *testing.T) {
	repo := &fakeRepo{missing: true}
	svc := NewService(repo, newMemorySessions(), Options{})

	if _, err := svc.Apply(context.Background(), 1, 9, []layout.Action{{Type: layout.ActionZoomIn}}); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected ErrResumeNotFound, got %v", err)
	}
}

func TestApplyStopsOnInvalidAction(t *testing.T) {
	repo := &fakeRepo{content: testContent(), stored: layout.EmptyDocument()}
	svc := NewService(repo, newMemorySessions(), Options{})

	view, err := svc.Apply(context.Background(), 1, 7, []layout.Action{
		{Type: layout.ActionSelect, ID: "text-2"},
		{Type: layout.ActionSelect, ID: "missing"},
		{Type: layout.ActionZoomIn},
	})
	if !errors.Is(err, layout.ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
	if view.SelectedID != "text-2" || view.Zoom != 1 {
		t.Fatalf("expected first action applied only, got %+v", view)
	}
}

func TestCloseDropsZoom(t *testing.T) {
	repo := &fakeRepo{content: testContent(), stored: layout.EmptyDocument()}
	sessions := newMemorySessions()
	svc := NewService(repo, sessions, Options{})
	ctx := context.Background()

	if _, err := svc.Apply(ctx, 1, 7, []layout.Action{{Type: layout.ActionZoomIn}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.Close(ctx, 1, 7); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sessions.data) != 0 {
		t.Fatal("expected session removed")
	}
	view, err := svc.Open(ctx, 1, 7)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if view.Zoom != 1 {
		t.Fatalf("expected default zoom after close, got %v", view.Zoom)
	}
}

func TestGormRepository(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	content, _ := json.Marshal(map[string]any{"personalInfo": map[string]any{"fullName": "Jane Doe"}})
	empty, _ := json.Marshal(layout.EmptyDocument())
	user := database.User{Email: "jane@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	rec := database.Resume{Title: "cv", UserID: user.ID, Content: datatypes.JSON(content), CanvasLayout: datatypes.JSON(empty)}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}

	repo := NewGormRepository(db)
	ctx := context.Background()

	got, doc, err := repo.LoadResume(ctx, user.ID, rec.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PersonalInfo.FullName != "Jane Doe" || doc.HasSections() {
		t.Fatalf("unexpected load result %+v %+v", got, doc)
	}

	if _, _, err := repo.LoadResume(ctx, user.ID+1, rec.ID); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected ownership check, got %v", err)
	}

	saved := layout.Serialize(layout.Generate(got))
	if err := repo.SaveLayout(ctx, user.ID, rec.ID, saved); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, doc, err = repo.LoadResume(ctx, user.ID, rec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Text != "Jane Doe" {
		t.Fatalf("unexpected stored layout %+v", doc)
	}

	if err := repo.SaveLayout(ctx, user.ID, rec.ID+100, saved); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected ErrResumeNotFound, got %v", err)
	}
}
