package llm

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integrationTestOptions 从环境变量构建测试配置，若 LLM_API_KEY 未设置则跳过
func integrationTestOptions(t *testing.T) Options {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" || apiKey == "your-api-key-here" {
		t.Skip("跳过集成测试：请设置 LLM_API_KEY 环境变量")
	}
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return Options{BaseURL: baseURL, APIKey: apiKey, Model: model}
}

func TestComplete_Integration(t *testing.T) {
	client := NewClient(integrationTestOptions(t))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	prompt := `你是一个专业的剧情记录员。请阅读以下聊天记录，并以严格的JSON格式输出 "summary"、"characters"、"items"。只输出JSON。

聊天记录:
旁白: 夜色降临，艾琳推开了酒馆的木门。
艾琳: 老板，来一杯麦酒。我在找一把叫做"霜语"的长剑。
酒馆老板: 霜语？听说它被埋在北边的古墓里。`

	content, err := client.Complete(ctx, prompt)
	require.NoError(t, err)
	require.NotEmpty(t, content)

	var parsed struct {
		Summary    string `json:"summary"`
		Characters []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"characters"`
	}
	_, err = ExtractJSON(content, &parsed)
	require.NoError(t, err, "返回内容应包含合法 JSON: %s", content)
	assert.NotEmpty(t, parsed.Summary)
	assert.NotEmpty(t, parsed.Characters)
}

func TestListModels_Integration(t *testing.T) {
	client := NewClient(integrationTestOptions(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := client.ListModels(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}
