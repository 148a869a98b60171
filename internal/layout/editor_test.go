package layout

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"resumecanvas/internal/resume"
)

func sampleContent() resume.Content {
	return resume.Content{
		PersonalInfo: resume.PersonalInfo{FullName: "Jane Doe", Email: "jane@example.com"},
		Experience:   []resume.Experience{{Position: "Engineer", Company: "Acme", StartDate: "2020-01"}},
	}
}

func TestEditorLoadGeneratesWithoutPersistedSections(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())

	if e.Phase != PhaseUninitialized {
		t.Fatalf("expected uninitialized phase, got %s", e.Phase)
	}
	if !reflect.DeepEqual(e.Blocks, Generate(sampleContent()).Blocks) {
		t.Fatal("expected generated blocks")
	}
	if e.Zoom != ZoomDefault {
		t.Fatalf("expected default zoom, got %v", e.Zoom)
	}
}

func TestEditorLoadPrefersPersistedLayout(t *testing.T) {
	stored := Document{Sections: []Section{{Type: "text", Text: "custom", X: floatPtr(100), Y: floatPtr(200)}}}

	e := NewEditor()
	e.Load(sampleContent(), stored)

	if e.Phase != PhasePersisted {
		t.Fatalf("expected persisted phase, got %s", e.Phase)
	}
	if len(e.Blocks) != 1 || e.Blocks[0].Text != "custom" || e.Blocks[0].X != 100 {
		t.Fatalf("expected persisted blocks, got %+v", e.Blocks)
	}
}

func TestEditorDragThenSave(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())

	if err := e.DragEnd("text-0", 100, 200); err != nil {
		t.Fatalf("drag: %v", err)
	}
	if !e.Dirty {
		t.Fatal("expected dirty after drag")
	}

	doc := e.Save()
	s := doc.Sections[0]
	if *s.X != 100 || *s.Y != 200 || s.Text != "Jane Doe" || s.FontWeight != WeightBold {
		t.Fatalf("unexpected saved section %+v", s)
	}
	if e.Phase != PhaseUninitialized {
		t.Fatal("save alone must not change phase")
	}

	e.MarkPersisted()
	if e.Phase != PhasePersisted || e.Dirty {
		t.Fatalf("expected persisted and clean, got %s dirty=%v", e.Phase, e.Dirty)
	}

	restored := Deserialize(doc)
	if restored.Blocks[0].X != 100 || restored.Blocks[0].Y != 200 {
		t.Fatalf("expected drag to survive reload, got %+v", restored.Blocks[0])
	}
}

func TestEditorDragErrors(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	before := e.Snapshot()

	if err := e.DragEnd("missing", 1, 1); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
	if err := e.DragEnd("text-0", math.NaN(), 1); !errors.Is(err, ErrNonFinitePosition) {
		t.Fatalf("expected ErrNonFinitePosition, got %v", err)
	}
	if !reflect.DeepEqual(e.Snapshot(), before) {
		t.Fatal("failed drags must not change blocks")
	}
}

func TestEditorDragAllowsOffPage(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	if err := e.DragEnd("text-1", -50, 5000); err != nil {
		t.Fatalf("drag: %v", err)
	}
	if e.Blocks[1].X != -50 || e.Blocks[1].Y != 5000 {
		t.Fatalf("expected position stored as-is, got %+v", e.Blocks[1])
	}
}

func TestEditorSelectLastWins(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())

	if err := e.Select("text-0"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := e.Select("text-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if e.SelectedID != "text-1" {
		t.Fatalf("expected text-1 selected, got %q", e.SelectedID)
	}
	if err := e.Select("nope"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
	if e.Dirty {
		t.Fatal("selection must not mark layout dirty")
	}
}

func TestEditorZoomLeavesGeometry(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	before := e.Snapshot()

	for i := 0; i < 20; i++ {
		e.ZoomIn()
	}
	if e.Zoom != ZoomMax {
		t.Fatalf("expected zoom clamped to %v, got %v", ZoomMax, e.Zoom)
	}
	for i := 0; i < 30; i++ {
		e.ZoomOut()
	}
	if e.Zoom != ZoomMin {
		t.Fatalf("expected zoom clamped to %v, got %v", ZoomMin, e.Zoom)
	}

	e.SetZoom(1.3)
	e.ZoomIn()
	if e.Zoom != 1.4 {
		t.Fatalf("expected 1.4, got %v", e.Zoom)
	}

	if !reflect.DeepEqual(e.Snapshot(), before) {
		t.Fatal("zoom must not change block geometry")
	}
	if !reflect.DeepEqual(e.Save(), Serialize(before)) {
		t.Fatal("zoom must not affect the saved document")
	}
}

func TestEditorApply(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	x, y, z := 12.0, 34.0, 1.5

	actions := []Action{
		{Type: ActionSelect, ID: "text-2"},
		{Type: ActionDragEnd, ID: "text-2", X: &x, Y: &y},
		{Type: ActionZoomSet, Zoom: &z},
		{Type: ActionZoomOut},
	}
	for _, a := range actions {
		if err := e.Apply(a); err != nil {
			t.Fatalf("apply %s: %v", a.Type, err)
		}
	}

	if e.SelectedID != "text-2" || e.Blocks[2].X != 12 || e.Blocks[2].Y != 34 || e.Zoom != 1.4 {
		t.Fatalf("unexpected state %+v", e)
	}

	if err := e.Apply(Action{Type: "resize"}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if err := e.Apply(Action{Type: ActionDragEnd, ID: "text-0"}); err == nil {
		t.Fatal("expected error for drag without coordinates")
	}
}

func TestEditorStateRoundTrip(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	_ = e.Select("text-1")
	e.ZoomIn()

	data, err := e.MarshalState()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := RestoreEditor(data)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.SelectedID != "text-1" || restored.Zoom != 1.1 || !reflect.DeepEqual(restored.Blocks, e.Blocks) {
		t.Fatalf("unexpected restored state %+v", restored)
	}
}

func TestEditorBlockCountStable(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	n := len(e.Blocks)
	_ = e.DragEnd("text-0", 1, 2)
	_ = e.Select("text-0")
	e.ZoomIn()
	_ = e.Save()
	if len(e.Blocks) != n {
		t.Fatalf("expected %d blocks, got %d", n, len(e.Blocks))
	}
}

func TestEditorIndexMatchesLayout(t *testing.T) {
	e := NewEditor()
	e.Load(sampleContent(), EmptyDocument())
	snap := e.Snapshot()

	for i, b := range e.Blocks {
		if got := e.index(b.ID); got != i || got != snap.Index(b.ID) {
			t.Fatalf("index(%q) = %d, want %d", b.ID, got, i)
		}
	}
	if e.index("text-999") != -1 {
		t.Fatal("expected -1 for unknown id")
	}
}
