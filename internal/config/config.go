package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type LLM struct {
	BaseURL         string  `yaml:"BaseURL"` // 兼容 OpenAI API 的端点
	APIKey          string  `yaml:"APIKey"`
	Model           string  `yaml:"Model"`           // 如 gpt-4o, deepseek-chat, qwen-plus
	MaxTokens       int     `yaml:"MaxTokens"`       // 模型上下文窗口大小，0 表示未知
	PromptPrice     float64 `yaml:"PromptPrice"`     // 每百万输入 token 价格（美元）
	CompletionPrice float64 `yaml:"CompletionPrice"` // 每百万输出 token 价格（美元）
	MaxRetries      int     `yaml:"MaxRetries"`      // 单次调用最大尝试次数，默认 8
	RetryBaseDelay  int     `yaml:"RetryBaseDelay"`  // 退避基数（毫秒），默认 1000
	Timeout         int     `yaml:"Timeout"`         // 单次请求超时（秒），默认 300
}

type Summary struct {
	Cron             string   `yaml:"Cron"`             // 每日报告 cron 表达式，如 "0 1 * * *"
	OutputType       string   `yaml:"OutputType"`       // 报告类型键，默认 "dailySummary"
	TypeFilter       []string `yaml:"TypeFilter"`       // 只处理这些类型的内容，空表示全部
	TokenBudget      int64    `yaml:"TokenBudget"`      // 单次运行 token 预算，0 表示不限
	ChunkSize        int      `yaml:"ChunkSize"`        // 报告合成每轮的分组大小，默认 8
	BlockedTopics    []string `yaml:"BlockedTopics"`    // 不参与分组的话题
	MaxItemsPerDay   int      `yaml:"MaxItemsPerDay"`   // raw_content 策略每天最多使用的内容条数，默认 200
	HybridSampleSize int      `yaml:"HybridSampleSize"` // hybrid 策略补充样本条数，默认 20
	RangeCron        string   `yaml:"RangeCron"`        // 区间报告 cron 表达式，空表示不启用
	RangeDays        int      `yaml:"RangeDays"`        // 区间报告天数，默认 7
	RangeStrategy    string   `yaml:"RangeStrategy"`    // daily_summaries / raw_content / hybrid
	RetentionDays    int      `yaml:"RetentionDays"`    // 原始内容保留天数，0 表示不清理
	RetryTimes       int      `yaml:"RetryTimes"`       // 生成失败重试次数，默认 3
	RetryInterval    int      `yaml:"RetryInterval"`    // 重试间隔（秒），默认 60
}

type Storage struct {
	Path string `yaml:"Path"` // SQLite 文件路径
}

type Redis struct {
	Enable   bool   `yaml:"Enable"`
	Addr     string `yaml:"Addr"`
	Password string `yaml:"Password"`
	DB       int    `yaml:"DB"`
	TTL      int    `yaml:"TTL"` // 缓存有效期（秒），默认 86400
}

type Metrics struct {
	Listen string `yaml:"Listen"` // 如 ":9090"，空表示不暴露
}

type Output struct {
	Dir string `yaml:"Dir"` // 报告输出目录，空表示不写文件
}

type Log struct {
	Level string `yaml:"Level"` // debug / info / warn / error
}

type Config struct {
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Summary    Summary    `yaml:"Summary"`
	Storage    Storage    `yaml:"Storage"`
	Redis      Redis      `yaml:"Redis"`
	Metrics    Metrics    `yaml:"Metrics"`
	Output     Output     `yaml:"Output"`
	Log        Log        `yaml:"Log"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}

	c.ApplyDefaults()

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// ApplyDefaults 填充未配置项的默认值
func (c *Config) ApplyDefaults() {
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 8
	}
	if c.LLM.RetryBaseDelay <= 0 {
		c.LLM.RetryBaseDelay = 1000
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 300
	}
	c.Summary.ApplyDefaults()
	if c.Storage.Path == "" {
		c.Storage.Path = "data/digest.db"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 86400
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ApplyDefaults 填充 Summary 的默认值
func (s *Summary) ApplyDefaults() {
	if s.OutputType == "" {
		s.OutputType = "dailySummary"
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = 8
	}
	if s.MaxItemsPerDay <= 0 {
		s.MaxItemsPerDay = 200
	}
	if s.HybridSampleSize <= 0 {
		s.HybridSampleSize = 20
	}
	if s.RangeDays <= 0 {
		s.RangeDays = 7
	}
	if s.RangeStrategy == "" {
		s.RangeStrategy = "daily_summaries"
	}
	if s.RetryTimes <= 0 {
		s.RetryTimes = 3
	}
	if s.RetryInterval <= 0 {
		s.RetryInterval = 60
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 LLM
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM.APIKey 不能为空")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM.BaseURL 不能为空")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM.Model 不能为空")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("LLM.MaxTokens 必须 >= 0")
	}
	if c.LLM.PromptPrice < 0 || c.LLM.CompletionPrice < 0 {
		return fmt.Errorf("LLM.PromptPrice 和 LLM.CompletionPrice 必须 >= 0")
	}

	// 验证 Summary
	if c.Summary.Cron == "" {
		return fmt.Errorf("Summary.Cron 不能为空")
	}
	if c.Summary.TokenBudget < 0 {
		return fmt.Errorf("Summary.TokenBudget 必须 >= 0")
	}
	if c.Summary.ChunkSize < 2 {
		return fmt.Errorf("Summary.ChunkSize 必须 >= 2")
	}
	if c.Summary.RetentionDays < 0 {
		return fmt.Errorf("Summary.RetentionDays 必须 >= 0")
	}
	switch c.Summary.RangeStrategy {
	case "daily_summaries", "raw_content", "hybrid":
	default:
		return fmt.Errorf("Summary.RangeStrategy 必须是 'daily_summaries', 'raw_content' 或 'hybrid'")
	}

	// 验证 Redis
	if c.Redis.Enable && c.Redis.Addr == "" {
		return fmt.Errorf("Redis.Addr 不能为空（当 Redis.Enable 为 true 时）")
	}

	return nil
}
