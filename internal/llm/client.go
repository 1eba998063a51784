package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/xchovs/story-tracker/internal/logger"
)

var (
	// ErrMissingCredential 未配置 API Key
	ErrMissingCredential = errors.New("请先在设置中配置 API Key")
	// ErrRequest 网络错误或接口返回非成功状态
	ErrRequest = errors.New("API 请求失败")
	// ErrMalformedResponse 模型返回内容无法解析为预期的 JSON
	ErrMalformedResponse = errors.New("模型返回格式错误，无法解析为 JSON")
)

// Temperature 梳理请求使用的采样温度
const Temperature = 0.5

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Options 单次请求使用的端点信息，来自插件设置
type Options struct {
	BaseURL    string // 不含 /v1 的端点地址
	APIKey     string
	Model      string
	HTTPClient openai.HTTPDoer
}

type Client struct {
	options      Options
	openaiClient openAIClientInterface
}

func NewClient(opts Options) *Client {
	openaiConfig := openai.DefaultConfig(opts.APIKey)
	openaiConfig.BaseURL = APIBase(opts.BaseURL)
	if opts.HTTPClient != nil {
		openaiConfig.HTTPClient = opts.HTTPClient
	}

	return &Client{
		options:      opts,
		openaiClient: openai.NewClientWithConfig(openaiConfig),
	}
}

// APIBase 去掉末尾的 "/" 并拼接 /v1
func APIBase(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/v1"
}

// estimateTokens 估算文本的 token 数量
func estimateTokens(text string) int {
	// 简单估算：中文约 1.5 token/字，英文约 1.3 token/词
	chineseChars := 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			chineseChars++
		}
	}
	englishWords := len(strings.Fields(text))

	tokens := int(float64(chineseChars)*1.5 + float64(englishWords)*1.3)
	if tokens < len(text)/4 {
		// 如果估算值太小，使用字符数的 1/4 作为下限
		tokens = len(text) / 4
	}
	return tokens
}

// Complete 发送单条 user 消息，返回模型回复的原始文本
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.options.APIKey == "" {
		return "", ErrMissingCredential
	}

	logger.Debugf("[LLM] 发送梳理请求, model: %s, 约 %d tokens", c.options.Model, estimateTokens(prompt))

	req := openai.ChatCompletionRequest{
		Model: c.options.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: Temperature,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequest, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: 返回结果为空", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels 获取端点可用的模型 ID 列表
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if c.options.APIKey == "" {
		return nil, ErrMissingCredential
	}

	list, err := c.openaiClient.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}

	return pie.Map(list.Models, func(m openai.Model) string { return m.ID }), nil
}
