package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// 对象键布局：<kind>/<user>/<resume>/<uuid>.<ext>，删除简历时按前缀清理。
const (
	kindExports  = "exports"
	kindPreviews = "previews"
)

// ExportKey 返回新导出 PDF 的对象键。
func ExportKey(userID, resumeID uint) string {
	return fmt.Sprintf("%s/%d/%d/%s.pdf", kindExports, userID, resumeID, uuid.NewString())
}

// PreviewKey 返回新预览图的对象键。
func PreviewKey(userID, resumeID uint) string {
	return fmt.Sprintf("%s/%d/%d/%s.png", kindPreviews, userID, resumeID, uuid.NewString())
}

// ResumePrefixes 返回某份简历名下全部对象的前缀。
func ResumePrefixes(userID, resumeID uint) []string {
	return []string{
		fmt.Sprintf("%s/%d/%d/", kindExports, userID, resumeID),
		fmt.Sprintf("%s/%d/%d/", kindPreviews, userID, resumeID),
	}
}
