package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier 命中的 JSON 提取层级
type Tier int

const (
	TierNone Tier = iota
	// TierStrict 去掉 markdown 代码块后整体即为 JSON 对象
	TierStrict
	// TierBalanced 第一个括号配平的 {...} 子串
	TierBalanced
)

func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierBalanced:
		return "balanced"
	default:
		return "none"
	}
}

// ExtractJSON 按 strict -> balanced 的顺序从模型回复中找出 JSON 对象并解析到 v。
// 全部失败时返回 ErrMalformedResponse。
func ExtractJSON(content string, v any) (Tier, error) {
	tier, payload := locateJSON(content)
	if tier == TierNone {
		return TierNone, ErrMalformedResponse
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return TierNone, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return tier, nil
}

func locateJSON(content string) (Tier, string) {
	trimmed := trimCodeFence(content)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return TierStrict, trimmed
	}

	if candidate, ok := firstBalancedObject(content); ok && json.Valid([]byte(candidate)) {
		return TierBalanced, candidate
	}
	return TierNone, ""
}

func trimCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// firstBalancedObject 返回第一个 "{" 开始、括号配平的子串，字符串字面量中的括号不计数
func firstBalancedObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}
