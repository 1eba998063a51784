package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey = "STORY_TRACKER_API_KEY"
	EnvAPIURL = "STORY_TRACKER_API_URL"
)

type Server struct {
	Addr  string `yaml:"Addr" validate:"required"` // 监听地址，如 ":8080"
	Debug bool   `yaml:"Debug"`
}

type Storage struct {
	DataDir        string `yaml:"DataDir" validate:"required"`
	SaveDebounceMs int    `yaml:"SaveDebounceMs" validate:"gte=0"` // 设置与聊天元数据的防抖保存间隔
}

// Defaults 首次加载插件设置时使用的默认值
type Defaults struct {
	BaseURL        string `yaml:"BaseURL"` // 兼容 OpenAI API 的端点，不含 /v1
	APIKey         string `yaml:"APIKey"`
	Model          string `yaml:"Model"`
	UpdateInterval *int   `yaml:"UpdateInterval"` // 每隔多少条消息自动梳理，0 为关闭
}

type LLM struct {
	TimeoutSeconds int `yaml:"TimeoutSeconds" validate:"gte=0"` // 0 表示不设超时
	HistoryLimit   int `yaml:"HistoryLimit" validate:"gte=0"`   // 参与梳理的最近消息条数，默认 20
}

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type TelegramApp struct {
	Enable         bool    `yaml:"Enable"`
	ApiId          int32   `yaml:"ApiId"`
	ApiHash        string  `yaml:"ApiHash"`
	ChatIds        []int64 `yaml:"ChatIds"`        // 仅监听这些聊天，为空则监听全部
	PublishSummary bool    `yaml:"PublishSummary"` // 梳理完成后把结果发回 Telegram 聊天
}

type Retention struct {
	Cron          string `yaml:"Cron"`          // cron 表达式，如 "0 4 * * *"，为空则不清理
	RetentionDays int    `yaml:"RetentionDays"` // 聊天记录保留天数
}

type Config struct {
	Server      Server      `yaml:"Server"`
	Storage     Storage     `yaml:"Storage"`
	Defaults    Defaults    `yaml:"Defaults"`
	LLM         LLM         `yaml:"LLM"`
	Sock5Proxy  Sock5Proxy  `yaml:"Sock5Proxy"`
	TelegramApp TelegramApp `yaml:"TelegramApp"`
	Retention   Retention   `yaml:"Retention"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// .env 文件可选
	_ = godotenv.Load()

	return Parse(data)
}

// Parse 解析 YAML 配置内容，并应用默认值与环境变量覆盖
func Parse(data []byte) (*Config, error) {
	c := Config{
		Server:  Server{Addr: ":8080"},
		Storage: Storage{DataDir: "data", SaveDebounceMs: 1000},
		LLM:     LLM{HistoryLimit: 20},
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.Defaults.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.Defaults.BaseURL = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	if c.Defaults.UpdateInterval != nil && *c.Defaults.UpdateInterval < 0 {
		return fmt.Errorf("Defaults.UpdateInterval 必须 >= 0")
	}

	// 验证 TelegramApp
	if c.TelegramApp.Enable {
		if c.TelegramApp.ApiId == 0 {
			return fmt.Errorf("TelegramApp.ApiId 不能为空")
		}
		if c.TelegramApp.ApiHash == "" {
			return fmt.Errorf("TelegramApp.ApiHash 不能为空")
		}
	}

	// 验证 Retention
	if c.Retention.Cron != "" && c.Retention.RetentionDays <= 0 {
		return fmt.Errorf("Retention.RetentionDays 必须 > 0（当配置了 Retention.Cron 时）")
	}

	if c.Sock5Proxy.Enable && c.Sock5Proxy.Host == "" {
		return fmt.Errorf("Sock5Proxy.Host 不能为空")
	}

	return nil
}
