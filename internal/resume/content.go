package resume

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Content 表示存储在简历 Content(JSONB) 中的结构化数据。
// 它只描述“简历写了什么”，位置信息由画布布局负责。
type Content struct {
	PersonalInfo   PersonalInfo    `json:"personalInfo"`
	Experience     []Experience    `json:"experience"`
	Education      []Education     `json:"education"`
	Skills         []SkillGroup    `json:"skills"`
	Projects       []Project       `json:"projects"`
	Certifications []Certification `json:"certifications"`
}

// PersonalInfo 为个人信息区块。
type PersonalInfo struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	LinkedIn string `json:"linkedin,omitempty"`
	Website  string `json:"website,omitempty"`
	Summary  string `json:"summary"`
}

type Experience struct {
	ID           string   `json:"id,omitempty"`
	Company      string   `json:"company"`
	Position     string   `json:"position"`
	Location     string   `json:"location,omitempty"`
	StartDate    string   `json:"startDate"`
	EndDate      string   `json:"endDate"`
	Current      bool     `json:"current,omitempty"`
	Description  string   `json:"description"`
	Achievements []string `json:"achievements,omitempty"`
}

type Education struct {
	ID          string `json:"id,omitempty"`
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field,omitempty"`
	Location    string `json:"location,omitempty"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	GPA         string `json:"gpa,omitempty"`
	Description string `json:"description,omitempty"`
}

type SkillGroup struct {
	ID       string   `json:"id,omitempty"`
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

type Project struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies,omitempty"`
	Link         string   `json:"link,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
}

type Certification struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Issuer         string `json:"issuer"`
	Date           string `json:"date"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	CredentialID   string `json:"credentialId,omitempty"`
}

// IsEmpty 判断内容是否不足以生成任何布局块。
func (c Content) IsEmpty() bool {
	p := c.PersonalInfo
	return p.FullName == "" && p.Email == "" && p.Phone == "" && p.Location == "" && p.Summary == "" &&
		len(c.Experience) == 0 && len(c.Education) == 0 && len(c.Skills) == 0
}

// Decode 宽松地解析存储的内容 JSON。
// 字段缺失、类型错误或整体不是对象时都不会报错，而是退化为空值；
// 前端表单产生的数据形状并不稳定，不能因为一个字段让整个编辑器不可用。
func Decode(raw []byte) Content {
	var doc map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil || doc == nil {
		return Content{}
	}
	return FromMap(doc)
}

// FromMap 从已解析的通用 map 构造 Content，规则同 Decode。
func FromMap(doc map[string]any) Content {
	var c Content

	if p, ok := doc["personalInfo"].(map[string]any); ok {
		c.PersonalInfo = PersonalInfo{
			FullName: str(p, "fullName"),
			Email:    str(p, "email"),
			Phone:    str(p, "phone"),
			Location: str(p, "location"),
			LinkedIn: str(p, "linkedin"),
			Website:  str(p, "website"),
			Summary:  str(p, "summary"),
		}
	}

	for _, item := range objects(doc["experience"]) {
		c.Experience = append(c.Experience, Experience{
			ID:           str(item, "id"),
			Company:      str(item, "company"),
			Position:     str(item, "position"),
			Location:     str(item, "location"),
			StartDate:    str(item, "startDate"),
			EndDate:      str(item, "endDate"),
			Current:      boolean(item, "current"),
			Description:  str(item, "description"),
			Achievements: strList(item["achievements"]),
		})
	}

	for _, item := range objects(doc["education"]) {
		institution := str(item, "institution")
		if institution == "" {
			// 内容表单历史上使用 school 字段。
			institution = str(item, "school")
		}
		c.Education = append(c.Education, Education{
			ID:          str(item, "id"),
			Institution: institution,
			Degree:      str(item, "degree"),
			Field:       str(item, "field"),
			Location:    str(item, "location"),
			StartDate:   str(item, "startDate"),
			EndDate:     str(item, "endDate"),
			GPA:         str(item, "gpa"),
			Description: str(item, "description"),
		})
	}

	if list, ok := doc["skills"].([]any); ok {
		for _, raw := range list {
			switch v := raw.(type) {
			case map[string]any:
				c.Skills = append(c.Skills, SkillGroup{
					ID:       str(v, "id"),
					Category: str(v, "category"),
					Items:    strList(v["items"]),
				})
			case string:
				c.Skills = append(c.Skills, SkillGroup{Items: []string{v}})
			}
		}
	}

	for _, item := range objects(doc["projects"]) {
		c.Projects = append(c.Projects, Project{
			ID:           str(item, "id"),
			Name:         str(item, "name"),
			Description:  str(item, "description"),
			Technologies: strList(item["technologies"]),
			Link:         str(item, "link"),
			StartDate:    str(item, "startDate"),
			EndDate:      str(item, "endDate"),
		})
	}

	for _, item := range objects(doc["certifications"]) {
		c.Certifications = append(c.Certifications, Certification{
			ID:             str(item, "id"),
			Name:           str(item, "name"),
			Issuer:         str(item, "issuer"),
			Date:           str(item, "date"),
			ExpirationDate: str(item, "expirationDate"),
			CredentialID:   str(item, "credentialId"),
		})
	}

	return c
}

func objects(raw any) []map[string]any {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func boolean(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

func strList(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
