package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON 从模型输出中取出第一个完整的 JSON 值。
// 模型经常在 JSON 外包裹说明文字或代码围栏，这里从第一个 '{'（allowArray 时也接受 '['）
// 开始，取到与之配对的最后一个闭合符为止。
func ExtractJSON(output string, allowArray bool) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(output)
	if json.Valid([]byte(trimmed)) && (strings.HasPrefix(trimmed, "{") || (allowArray && strings.HasPrefix(trimmed, "["))) {
		return json.RawMessage(trimmed), nil
	}

	candidates := []struct{ open, close string }{{"{", "}"}}
	if allowArray {
		candidates = append([]struct{ open, close string }{{"[", "]"}}, candidates...)
	}

	first := -1
	var closer string
	for _, c := range candidates {
		i := strings.Index(output, c.open)
		if i >= 0 && (first < 0 || i < first) {
			first = i
			closer = c.close
		}
	}
	if first < 0 {
		return nil, fmt.Errorf("%w: no json found in output", ErrGenerationFailed)
	}

	last := strings.LastIndex(output, closer)
	if last <= first {
		return nil, fmt.Errorf("%w: unterminated json in output", ErrGenerationFailed)
	}

	raw := output[first : last+1]
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: invalid json in output", ErrGenerationFailed)
	}
	return json.RawMessage(raw), nil
}
