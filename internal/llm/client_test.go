package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockOpenAIClient 模拟 OpenAI 客户端
type mockOpenAIClient struct {
	mock.Mock
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func (m *mockOpenAIClient) ListModels(ctx context.Context) (openai.ModelsList, error) {
	args := m.Called(ctx)
	return args.Get(0).(openai.ModelsList), args.Error(1)
}

// newTestClient 创建用于测试的客户端，注入 mock
func newTestClient(opts Options, mockClient openAIClientInterface) *Client {
	return &Client{options: opts, openaiClient: mockClient}
}

func TestAPIBase(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1", APIBase("https://api.openai.com"))
	assert.Equal(t, "https://api.openai.com/v1", APIBase("https://api.openai.com/"))
	assert.Equal(t, "http://127.0.0.1:1234/v1", APIBase(" http://127.0.0.1:1234// "))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin int
		wantMax int
	}{
		{"空文本", "", 0, 0},
		{"纯中文", "这是一段中文测试文本", 8, 50},
		{"纯英文", "This is a test message", 4, 30},
		{"中英混合", "Hello 世界 test 测试", 4, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateTokens(tt.text)
			assert.GreaterOrEqual(t, got, tt.wantMin)
			assert.LessOrEqual(t, got, tt.wantMax)
		})
	}
}

func TestComplete_MissingAPIKey(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	client := newTestClient(Options{Model: "test"}, mockAPI)

	_, err := client.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrMissingCredential)
	mockAPI.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestComplete_Success(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "test-model" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == openai.ChatMessageRoleUser &&
			req.Messages[0].Content == "prompt" &&
			req.Temperature == Temperature
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"summary":"s"}`}},
		},
	}, nil)

	client := newTestClient(Options{APIKey: "sk", Model: "test-model"}, mockAPI)
	content, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"s"}`, content)
	mockAPI.AssertExpectations(t)
}

func TestComplete_APIError(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("connection refused"))

	client := newTestClient(Options{APIKey: "sk", Model: "m"}, mockAPI)
	_, err := client.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrRequest)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestComplete_EmptyChoices(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{Choices: nil}, nil)

	client := newTestClient(Options{APIKey: "sk", Model: "m"}, mockAPI)
	_, err := client.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestListModels(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("ListModels", mock.Anything).Return(openai.ModelsList{
		Models: []openai.Model{{ID: "gpt-4o"}, {ID: "deepseek-chat"}},
	}, nil)

	client := newTestClient(Options{APIKey: "sk"}, mockAPI)
	ids, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "deepseek-chat"}, ids)
}

func TestListModels_Error(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("ListModels", mock.Anything).Return(openai.ModelsList{}, errors.New("boom"))

	client := newTestClient(Options{APIKey: "sk"}, mockAPI)
	_, err := client.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrRequest)

	_, err = newTestClient(Options{}, mockAPI).ListModels(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredential)
}

// 通过真实 HTTP 验证请求路径、鉴权头与请求体
func TestClient_HTTPWire(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-wire", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`))
		case "/v1/models":
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"m1","object":"model"},{"id":"m2","object":"model"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "sk-wire", Model: "m1", HTTPClient: srv.Client()})

	content, err := client.Complete(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, "m1", gotBody["model"])
	assert.InDelta(t, 0.5, gotBody["temperature"], 0.0001)
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "prompt text", msgs[0].(map[string]any)["content"])

	ids, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
}

func TestClient_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, APIKey: "bad", Model: "m", HTTPClient: srv.Client()})
	_, err := client.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrRequest)

	_, err = client.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrRequest)
}
