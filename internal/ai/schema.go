package ai

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// contentSchema 约束生成的简历内容：只校验画布与编辑器依赖的结构，允许额外字段。
const contentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["personalInfo"],
  "properties": {
    "personalInfo": {
      "type": "object",
      "required": ["fullName"],
      "properties": {
        "fullName": {"type": "string", "minLength": 1},
        "email": {"type": "string"},
        "phone": {"type": "string"},
        "location": {"type": "string"},
        "summary": {"type": "string"}
      }
    },
    "experience": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "company": {"type": "string"},
          "position": {"type": "string"},
          "startDate": {"type": "string"},
          "endDate": {"type": "string"},
          "description": {"type": "string"},
          "achievements": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "education": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "institution": {"type": "string"},
          "degree": {"type": "string"},
          "field": {"type": "string"},
          "startDate": {"type": "string"},
          "endDate": {"type": "string"}
        }
      }
    },
    "skills": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["items"],
        "properties": {
          "category": {"type": "string"},
          "items": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "projects": {"type": "array"}
  }
}`

var contentSchemaLoader = gojsonschema.NewStringLoader(contentSchema)

// ValidateContent 校验生成的简历内容 JSON。
func ValidateContent(raw []byte) error {
	res, err := gojsonschema.Validate(contentSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: schema validation failed: %s", ErrGenerationFailed, strings.Join(msgs, "; "))
}
