package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Summary string `json:"summary"`
	Items   []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"items"`
}

func TestExtractJSON_Tiers(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantTier    Tier
		wantSummary string
	}{
		{"纯 JSON", `{"summary":"a"}`, TierStrict, "a"},
		{"前后空白", "\n  {\"summary\":\"a\"}  \n", TierStrict, "a"},
		{"markdown 代码块", "```json\n{\"summary\":\"b\"}\n```", TierStrict, "b"},
		{"前后有说明文字", `好的，结果如下：{"summary":"c"} 希望有帮助`, TierBalanced, "c"},
		{"字符串内含括号", `结果: {"summary":"有}号{的文本"} 完`, TierBalanced, "有}号{的文本"},
		{"转义引号", `x {"summary":"say \"}\" ok"} y`, TierBalanced, `say "}" ok`},
		{"两个对象取第一个", `{"summary":"first"} and {"summary":"second"}`, TierBalanced, "first"},
		{"尾部多余括号", `{"summary":"span", "items":[{"name":"剑","status":"x"}]} }`, TierBalanced, "span"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v sample
			tier, err := ExtractJSON(tt.content, &v)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, tier)
			assert.Equal(t, tt.wantSummary, v.Summary)
		})
	}
}

func TestExtractJSON_FirstBalancedOnly(t *testing.T) {
	// 只尝试第一个配平子串，它不是合法 JSON 时直接失败
	var v map[string]any
	_, err := ExtractJSON(`note {bad} {"summary":"x"}`, &v)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	tier, err := ExtractJSON(`prefix {"summary":"outer {", "items":[]}`, &v)
	require.NoError(t, err)
	assert.Equal(t, TierBalanced, tier)
	assert.Equal(t, "outer {", v["summary"])

	// 没有闭合的对象
	_, err = ExtractJSON(`text {"summary":"y"`, &v)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestExtractJSON_Malformed(t *testing.T) {
	tests := []string{
		"",
		"没有任何 JSON",
		"null",
		`["summary"]`,
		`{"summary": }`,
		"}{",
	}
	for _, content := range tests {
		var v sample
		tier, err := ExtractJSON(content, &v)
		assert.ErrorIs(t, err, ErrMalformedResponse, content)
		assert.Equal(t, TierNone, tier)
	}
}

func TestExtractJSON_WrongShape(t *testing.T) {
	var v sample
	_, err := ExtractJSON(`{"summary": 12}`, &v)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "strict", TierStrict.String())
	assert.Equal(t, "balanced", TierBalanced.String())
	assert.Equal(t, "none", TierNone.String())
}
