package summarizer

import (
	"context"
	"fmt"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/llm"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/usage"
	"golang.org/x/sync/errgroup"
)

const (
	// 上下文长度未知时使用的保守上限
	defaultContextLength = 8192
	// prompt 最多占用上下文的比例，其余留给输出
	contextFraction = 0.8
	// 分块并发调用数上限
	maxConcurrentCalls = 4
)

// ContextBudget 根据模型上下文长度计算 prompt 的 token 预算
func ContextBudget(contextLength int) int {
	if contextLength <= 0 {
		contextLength = defaultContextLength
	}
	return int(float64(contextLength) * contextFraction)
}

// TopicSummarizer 将一个话题分组总结为一个结构化总结，超出上下文时拆分后合并
type TopicSummarizer struct {
	caller *meteredCaller
	budget int
}

func NewTopicSummarizer(client LLMCaller, tracker *usage.Tracker) *TopicSummarizer {
	return &TopicSummarizer{
		caller: &meteredCaller{client: client, tracker: tracker},
		budget: ContextBudget(client.ContextLength()),
	}
}

// Budget 单次 prompt 的 token 预算
func (s *TopicSummarizer) Budget() int {
	return s.budget
}

// SummarizeTopic 使用模型上下文预算总结话题
func (s *TopicSummarizer) SummarizeTopic(ctx context.Context, topic string, members []content.Record) (*artifact.Summary, error) {
	return s.SummarizeTopicWithBudget(ctx, topic, members, s.budget)
}

// SummarizeTopicWithBudget 总结话题；预算耗尽时返回 usage.ErrBudgetExhausted，不返回部分结果
func (s *TopicSummarizer) SummarizeTopicWithBudget(ctx context.Context, topic string, members []content.Record, budget int) (*artifact.Summary, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("话题 %s 没有内容", topic)
	}
	if budget <= 0 {
		budget = ContextBudget(0)
	}

	prompt := buildTopicPrompt(topic, members)
	estimated := llm.EstimateTokens(topicSystemPrompt + prompt)
	if estimated <= budget {
		raw, err := s.caller.call(ctx, prompt, topicOptions())
		if err != nil {
			return nil, err
		}
		summary, ok := parseOrWrap(raw, topic)
		if !ok {
			logger.Warnf("[Summarizer] 话题 %s 的输出不是合法 JSON，按原文保留", topic)
		}
		return &summary, nil
	}

	// 拆分前检查一次预算，同一话题的分块调用不再单独检查
	if err := s.caller.tracker.Check(); err != nil {
		return nil, err
	}

	k := (estimated + budget - 1) / budget
	chunks := splitChunks(members, k)
	logger.Infof("[Summarizer] 话题 %s 约 %d tokens 超出预算 %d，拆分为 %d 块", topic, estimated, budget, len(chunks))

	partials, err := s.summarizeChunks(ctx, topic, chunks)
	if err != nil {
		return nil, err
	}
	if len(partials) == 0 {
		return nil, fmt.Errorf("话题 %s 的 %d 个分块全部总结失败", topic, len(chunks))
	}
	if len(partials) == 1 {
		return &partials[0], nil
	}

	merged := s.merge(ctx, topic, partials, budget)
	return &merged, nil
}

// summarizeChunks 并发总结各分块，结果按分块顺序返回；失败的分块不贡献内容
func (s *TopicSummarizer) summarizeChunks(ctx context.Context, topic string, chunks [][]content.Record) ([]artifact.Summary, error) {
	results := make([]*artifact.Summary, len(chunks))

	var g errgroup.Group
	g.SetLimit(maxConcurrentCalls)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			raw, err := s.caller.callUnchecked(ctx, buildTopicPrompt(topic, chunk), topicOptions())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warnf("[Summarizer] 话题 %s 分块 %d/%d 总结失败: %v", topic, i+1, len(chunks), err)
				return nil
			}
			summary, ok := parseOrWrap(raw, topic)
			if !ok {
				logger.Warnf("[Summarizer] 话题 %s 分块 %d/%d 的输出不是合法 JSON，按原文保留", topic, i+1, len(chunks))
			}
			results[i] = &summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	partials := make([]artifact.Summary, 0, len(results))
	for _, r := range results {
		if r != nil {
			partials = append(partials, *r)
		}
	}
	return partials, nil
}

// merge 合并分块总结；合并 prompt 超出预算或调用失败时直接拼接
func (s *TopicSummarizer) merge(ctx context.Context, topic string, partials []artifact.Summary, budget int) artifact.Summary {
	prompt := buildMergePrompt(topic, partials)
	if llm.EstimateTokens(mergeSystemPrompt+prompt) > budget {
		logger.Infof("[Summarizer] 话题 %s 的合并 prompt 超出预算，直接拼接 %d 个分块", topic, len(partials))
		return concatSummaries(topic, partials)
	}

	raw, err := s.caller.call(ctx, prompt, mergeOptions())
	if err != nil {
		logger.Warnf("[Summarizer] 话题 %s 合并失败，直接拼接: %v", topic, err)
		return concatSummaries(topic, partials)
	}
	merged, err := parseSummary(raw, topic)
	if err != nil {
		logger.Warnf("[Summarizer] 话题 %s 合并结果无法解析，直接拼接: %v", topic, err)
		return concatSummaries(topic, partials)
	}
	return merged
}

// concatSummaries 按分块顺序拼接内容，不丢弃也不重复
func concatSummaries(topic string, partials []artifact.Summary) artifact.Summary {
	out := artifact.Summary{Topic: topic, Title: topic}
	for _, p := range partials {
		if out.Title == topic && p.Title != "" {
			out.Title = p.Title
		}
		out.Content = append(out.Content, p.Content...)
	}
	return out
}

// splitChunks 将成员按顺序切成 k 块，每块 ceil(n/k) 条
func splitChunks(members []content.Record, k int) [][]content.Record {
	n := len(members)
	if n == 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	size := (n + k - 1) / k
	chunks := make([][]content.Record, 0, k)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, members[start:end])
	}
	return chunks
}
