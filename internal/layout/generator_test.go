package layout

import (
	"reflect"
	"testing"

	"resumecanvas/internal/resume"
)

func TestGenerateEmptyContent(t *testing.T) {
	l := Generate(resume.Content{})
	if len(l.Blocks) != 0 {
		t.Fatalf("expected no blocks, got %d", len(l.Blocks))
	}
	if l.Width != PageWidth || l.Height != PageHeight || l.Background != PageBackground {
		t.Fatalf("unexpected page metadata %+v", l)
	}
}

func TestGenerateNameOnly(t *testing.T) {
	l := Generate(resume.Content{PersonalInfo: resume.PersonalInfo{FullName: "Jane Doe"}})
	if len(l.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(l.Blocks))
	}
	b := l.Blocks[0]
	if b.ID != "text-0" || b.X != 40 || b.Y != 40 {
		t.Fatalf("unexpected name block %+v", b)
	}
	if b.FontSize != 32 || !b.Bold() || b.Fill != "#1e293b" || b.FontFamily != "Arial" {
		t.Fatalf("unexpected name style %+v", b)
	}
	if b.Width == nil || *b.Width != 736 {
		t.Fatalf("expected width 736, got %v", b.Width)
	}
}

func TestGenerateNameAndExperience(t *testing.T) {
	c := resume.Content{
		PersonalInfo: resume.PersonalInfo{FullName: "Jane Doe"},
		Experience: []resume.Experience{{
			Position:    "Engineer",
			Company:     "Acme",
			StartDate:   "2020-01",
			EndDate:     "2022-01",
			Description: "Built things",
		}},
	}
	l := Generate(c)
	if len(l.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(l.Blocks))
	}

	wantY := []float64{40, 90, 125}
	for i, y := range wantY {
		if l.Blocks[i].Y != y {
			t.Fatalf("block %d: expected y=%v, got %v", i, y, l.Blocks[i].Y)
		}
	}
	if l.Blocks[1].Text != "EXPERIENCE" || l.Blocks[1].FontSize != 18 {
		t.Fatalf("unexpected heading %+v", l.Blocks[1])
	}
	if got := l.Blocks[2].Text; got != "Engineer | Acme\n2020-01 - 2022-01\nBuilt things" {
		t.Fatalf("unexpected entry text %q", got)
	}
}

func TestGenerateFullFlow(t *testing.T) {
	c := resume.Content{
		PersonalInfo: resume.PersonalInfo{
			FullName: "Jane Doe",
			Email:    "jane@example.com",
			Location: "Berlin",
			Summary:  "Backend engineer",
		},
		Experience: []resume.Experience{{Position: "Engineer", Company: "Acme", StartDate: "2020-01"}},
		Education: []resume.Education{
			{Degree: "BSc", Field: "CS", Institution: "TU", StartDate: "2014", EndDate: "2018"},
			{Degree: "MSc", Institution: "TU", StartDate: "2018", EndDate: "2020"},
		},
		Skills: []resume.SkillGroup{{Items: []string{"Go", "SQL"}}},
	}
	l := Generate(c)

	texts := make([]string, len(l.Blocks))
	ys := make([]float64, len(l.Blocks))
	for i, b := range l.Blocks {
		texts[i] = b.Text
		ys[i] = b.Y
		if b.ID != blockID(i) {
			t.Fatalf("block %d has id %q", i, b.ID)
		}
	}

	wantTexts := []string{
		"Jane Doe",
		"jane@example.com | Berlin",
		"Backend engineer",
		"EXPERIENCE",
		"Engineer | Acme\n2020-01 - Present\n",
		"EDUCATION",
		"BSc in CS\nTU\n2014 - 2018",
		"MSc\nTU\n2018 - 2020",
		"SKILLS",
		"Skill: Go, SQL",
	}
	if !reflect.DeepEqual(texts, wantTexts) {
		t.Fatalf("unexpected texts:\n%q\nwant\n%q", texts, wantTexts)
	}

	wantY := []float64{40, 90, 120, 200, 235, 315, 350, 410, 470, 505}
	if !reflect.DeepEqual(ys, wantY) {
		t.Fatalf("unexpected y positions %v, want %v", ys, wantY)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("generated layout invalid: %v", err)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	c := resume.Content{
		PersonalInfo: resume.PersonalInfo{FullName: "A", Phone: "1"},
		Skills:       []resume.SkillGroup{{Category: "Lang", Items: []string{"Go"}}},
	}
	if !reflect.DeepEqual(Generate(c), Generate(c)) {
		t.Fatal("expected identical layouts for identical content")
	}
}
