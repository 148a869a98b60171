package layout

import (
	"strings"

	"resumecanvas/internal/resume"
)

// 生成器的版式常量。每个区块推进的纵向距离是固定值，不根据实际文字高度测量；
// 文字超出增量导致的重叠是已接受的视觉瑕疵。
const (
	marginX    = 40
	marginTop  = 40
	blockWidth = 736

	advanceName       = 50
	advanceContact    = 30
	advanceSummary    = 80
	advanceHeading    = 35
	advanceExperience = 80
	advanceEducation  = 60
	advanceSkill      = 25

	colorHeading = "#1e293b"
	colorMuted   = "#64748b"
	colorBody    = "#334155"
)

// Generate 根据简历内容推导初始布局：自上而下的单列流式排版。
// 相同的输入总是得到相同的块列表（id 与坐标）。
func Generate(c resume.Content) Layout {
	g := &generator{cursor: marginTop}
	p := c.PersonalInfo

	if p.FullName != "" {
		g.add(p.FullName, 32, colorHeading, WeightBold, advanceName)
	}

	if contact := joinNonEmpty(" | ", p.Email, p.Phone, p.Location); contact != "" {
		g.add(contact, 12, colorMuted, WeightNormal, advanceContact)
	}

	if p.Summary != "" {
		g.add(p.Summary, 12, colorBody, WeightNormal, advanceSummary)
	}

	if len(c.Experience) > 0 {
		g.heading("EXPERIENCE")
		for _, exp := range c.Experience {
			g.add(experienceText(exp), 11, colorBody, WeightNormal, advanceExperience)
		}
	}

	if len(c.Education) > 0 {
		g.heading("EDUCATION")
		for _, edu := range c.Education {
			g.add(educationText(edu), 11, colorBody, WeightNormal, advanceEducation)
		}
	}

	if len(c.Skills) > 0 {
		g.heading("SKILLS")
		for _, group := range c.Skills {
			g.add(skillText(group), 11, colorBody, WeightNormal, advanceSkill)
		}
	}

	return NewLayout(g.blocks)
}

type generator struct {
	blocks []TextBlock
	cursor float64
}

func (g *generator) add(text string, size float64, fill, weight string, advance float64) {
	g.blocks = append(g.blocks, TextBlock{
		ID:         blockID(len(g.blocks)),
		X:          marginX,
		Y:          g.cursor,
		Text:       text,
		FontSize:   size,
		FontFamily: DefaultFont,
		Fill:       fill,
		Weight:     weight,
		Width:      floatPtr(blockWidth),
	})
	g.cursor += advance
}

func (g *generator) heading(title string) {
	g.add(title, 18, colorHeading, WeightBold, advanceHeading)
}

func experienceText(exp resume.Experience) string {
	end := exp.EndDate
	if end == "" {
		end = "Present"
	}
	return exp.Position + " | " + exp.Company + "\n" +
		exp.StartDate + " - " + end + "\n" +
		exp.Description
}

func educationText(edu resume.Education) string {
	degree := edu.Degree
	if edu.Field != "" {
		degree += " in " + edu.Field
	}
	return degree + "\n" + edu.Institution + "\n" + edu.StartDate + " - " + edu.EndDate
}

func skillText(group resume.SkillGroup) string {
	category := group.Category
	if category == "" {
		category = "Skill"
	}
	return category + ": " + strings.Join(group.Items, ", ")
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
