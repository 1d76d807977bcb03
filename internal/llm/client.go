package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/usage"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultMaxRetries     = 8
	defaultRetryBaseDelay = time.Second
	defaultTimeout        = 5 * time.Minute
	maxCompletionTokens   = 4000
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options 单次调用的可选参数
type Options struct {
	SystemPrompt string
	Temperature  *float32
	JSONMode     bool
}

// Result 单次调用的输出和用量
type Result struct {
	Text  string
	Usage usage.Usage
}

type Client struct {
	config       *config.LLM
	openaiClient openAIClientInterface
	maxRetries   int
	baseDelay    time.Duration
	timeout      time.Duration
}

// NewClient 创建 LLM 客户端，transport 为 nil 时使用默认传输层
func NewClient(cfg *config.LLM, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	openaiConfig.HTTPClient = &http.Client{Transport: &retryAfterTransport{base: transport}}

	return newClient(cfg, openai.NewClientWithConfig(openaiConfig))
}

func newClient(cfg *config.LLM, api openAIClientInterface) *Client {
	c := &Client{
		config:       cfg,
		openaiClient: api,
		maxRetries:   cfg.MaxRetries,
		baseDelay:    time.Duration(cfg.RetryBaseDelay) * time.Millisecond,
		timeout:      time.Duration(cfg.Timeout) * time.Second,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultRetryBaseDelay
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// ContextLength 模型上下文窗口大小，0 表示未知
func (c *Client) ContextLength() int {
	return c.config.MaxTokens
}

// ModelPricing 每 token 单价（美元）
func (c *Client) ModelPricing() usage.Pricing {
	return usage.Pricing{
		PromptPerToken:     c.config.PromptPrice / 1e6,
		CompletionPerToken: c.config.CompletionPrice / 1e6,
	}
}

// Summarize 发送一次对话补全请求，临时性错误按退避策略重试
func (c *Client) Summarize(ctx context.Context, prompt string, opts Options) (*Result, error) {
	req := c.buildRequest(prompt, opts)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		result, err := c.complete(ctx, req)
		if err == nil {
			return result, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, err
		}
		lastErr = err
		if attempt == c.maxRetries-1 {
			break
		}

		delay := retryDelay(attempt, c.baseDelay, transient.RetryAfter)
		logger.Warnf("[LLM] 调用失败 (第 %d/%d 次), %v 后重试: %v", attempt+1, c.maxRetries, delay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("LLM 调用重试 %d 次后仍失败: %w", c.maxRetries, lastErr)
}

func (c *Client) buildRequest(prompt string, opts Options) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: maxCompletionTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

// complete 执行一次请求，不重试
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (*Result, error) {
	hint := &retryHint{}
	ctx, cancel := context.WithTimeout(withRetryHint(ctx, hint), c.timeout)
	defer cancel()

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(fmt.Errorf("调用 LLM API 失败: %w", err), hint.get())
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM API 返回空结果")
	}

	return &Result{
		Text: CleanOutput(resp.Choices[0].Message.Content),
		Usage: usage.Usage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}

// CleanOutput 去掉模型输出外层的 markdown 代码块标记
func CleanOutput(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```markdown")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// EstimateTokens 按 1 token ≈ 4 字符估算
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
