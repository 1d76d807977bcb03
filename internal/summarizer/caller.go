package summarizer

import (
	"context"

	"github.com/fachebot/ai-news-digest/internal/llm"
	"github.com/fachebot/ai-news-digest/internal/usage"
)

// LLMCaller 总结所需的模型能力（便于测试注入 mock）
type LLMCaller interface {
	Summarize(ctx context.Context, prompt string, opts llm.Options) (*llm.Result, error)
	ContextLength() int
	ModelPricing() usage.Pricing
}

// meteredCaller 每次调用后把用量记入 tracker
type meteredCaller struct {
	client  LLMCaller
	tracker *usage.Tracker
}

// call 先检查预算再调用；预算在上一次调用后已耗尽时返回 usage.ErrBudgetExhausted
func (c *meteredCaller) call(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	if err := c.tracker.Check(); err != nil {
		return "", err
	}
	return c.callUnchecked(ctx, prompt, opts)
}

// callUnchecked 用于同一工作单元内已经检查过预算的并发调用
func (c *meteredCaller) callUnchecked(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	result, err := c.client.Summarize(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	c.tracker.Record(result.Usage)
	return result.Text, nil
}
