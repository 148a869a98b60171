package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const contentSkeleton = `{
  "personalInfo": {"fullName": "string", "email": "string", "phone": "string", "summary": "Professional summary (2-3 sentences)"},
  "experience": [{"id": "unique-id", "company": "Company Name", "position": "Job Title", "location": "City, Country", "startDate": "YYYY-MM", "endDate": "YYYY-MM or Present", "description": "Brief description", "achievements": ["Achievement 1"]}],
  "education": [{"id": "unique-id", "institution": "University Name", "degree": "Degree Type", "field": "Field of Study", "location": "City, Country", "startDate": "YYYY-MM", "endDate": "YYYY-MM"}],
  "skills": [{"id": "unique-id", "category": "Category Name", "items": ["Skill 1", "Skill 2"]}],
  "projects": []
}`

func fullPrompt(d FullRequest) string {
	var b strings.Builder
	b.WriteString("Generate a professional resume in JSON format for the following person:\n\n")
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\n", d.FullName, d.Email)
	if d.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", d.Phone)
	}
	if d.TargetRole != "" {
		fmt.Fprintf(&b, "Target Role: %s\n", d.TargetRole)
	}
	fmt.Fprintf(&b, "\nExperience: %s\nEducation: %s\nSkills: %s\n\n",
		orNone(d.Experience, "experience"), orNone(d.Education, "education"), orNone(d.Skills, "skills"))
	b.WriteString("Please generate a complete resume with the following structure:\n")
	b.WriteString(contentSkeleton)
	b.WriteString("\n\nReturn ONLY valid JSON, no additional text.")
	return b.String()
}

func sectionPrompt(d SectionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a professional %s section for a resume.\n\nContext: %s\n", d.SectionType, d.Context)
	if len(d.ExistingContent) > 0 {
		fmt.Fprintf(&b, "Existing content for reference: %s\n", compact(d.ExistingContent))
	}
	b.WriteString(`
Return the section in JSON format matching the resume structure.
For experience: include company, position, location, dates, description, and achievements array.
For education: include institution, degree, field, location, and dates.
For skills: include category and items array.
For projects: include name, description, technologies array, and optional link.

Return ONLY valid JSON array, no additional text.`)
	return b.String()
}

func rewritePrompt(d RewriteRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the following resume section to be more professional and impactful:\n\n%s\n\n", d.Content)
	if d.Instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n\n", d.Instructions)
	}
	b.WriteString(`Make it:
- Action-oriented with strong verbs
- Quantifiable where possible
- Clear and concise
- ATS-friendly

Return only the improved text without additional commentary.`)
	return b.String()
}

func tailorPrompt(d TailorRequest) string {
	return fmt.Sprintf(`Tailor this resume to match the following job description:

Job Description:
%s

Current Resume:
%s

Optimize the resume by:
1. Adjusting the professional summary to align with the job
2. Highlighting relevant experience and achievements
3. Emphasizing matching skills
4. Using keywords from the job description

Return the complete tailored resume in the same JSON format. Return ONLY valid JSON, no additional text.`,
		d.JobDescription, indent(d.ResumeContent))
}

func orNone(v, what string) string {
	if strings.TrimSpace(v) == "" {
		return "No " + what + " provided"
	}
	return v
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

func indent(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

// summarize 截取用于生成日志的提示词摘要。
func summarize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
