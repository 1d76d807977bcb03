package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/usage"
	"golang.org/x/sync/errgroup"
)

const DefaultChunkSize = 8

// Composition 报告合成结果
type Composition struct {
	Markdown string
	// Rounds 收缩轮数，n <= chunkSize 时为 0
	Rounds int
	// Levels 模型调用的层数，等于 Rounds+1；没有调用模型时为 0
	Levels int
	// Local 最终一层是否在本地渲染（预算耗尽或调用失败）
	Local bool
}

// Composer 通过多路归约把若干话题总结合成一份 markdown 报告
type Composer struct {
	caller    *meteredCaller
	chunkSize int
}

func NewComposer(client LLMCaller, tracker *usage.Tracker, chunkSize int) *Composer {
	if chunkSize < 2 {
		chunkSize = DefaultChunkSize
	}
	return &Composer{
		caller:    &meteredCaller{client: client, tracker: tracker},
		chunkSize: chunkSize,
	}
}

// EmptyReport 没有任何内容时的占位报告
func EmptyReport(label string) string {
	return fmt.Sprintf("# %s\n\nNo content was collected for this period.\n", label)
}

// Compose 合成报告；预算耗尽不返回错误，而是在本地渲染当前层
func (c *Composer) Compose(ctx context.Context, summaries []artifact.Summary, label string) (*Composition, error) {
	if len(summaries) == 0 {
		return &Composition{Markdown: EmptyReport(label)}, nil
	}

	current := summaries
	rounds := 0
	for len(current) > c.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// 每轮检查一次预算
		if err := c.caller.tracker.Check(); err != nil {
			logger.Warnf("[Composer] 第 %d 轮前预算耗尽，本地渲染 %d 个总结", rounds+1, len(current))
			return &Composition{Markdown: artifact.RenderMarkdown(label, current), Rounds: rounds, Levels: rounds, Local: true}, nil
		}

		next, err := c.contract(ctx, current, label)
		if err != nil {
			return nil, err
		}
		logger.Infof("[Composer] 第 %d 轮: %d 个总结收缩为 %d 个", rounds+1, len(current), len(next))
		current = next
		rounds++
	}

	markdown, err := c.caller.call(ctx, buildComposePrompt(label, current), composeOptions())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, usage.ErrBudgetExhausted) {
			logger.Warnf("[Composer] 预算耗尽，本地渲染最终报告")
		} else {
			logger.Warnf("[Composer] 生成最终报告失败，本地渲染: %v", err)
		}
		return &Composition{Markdown: artifact.RenderMarkdown(label, current), Rounds: rounds, Levels: rounds, Local: true}, nil
	}

	return &Composition{Markdown: markdown, Rounds: rounds, Levels: rounds + 1}, nil
}

// contract 将总结按 chunkSize 分块，每块合成为一个 "Summary Part N"，结果保持分块顺序
func (c *Composer) contract(ctx context.Context, summaries []artifact.Summary, label string) ([]artifact.Summary, error) {
	chunks := chunkSummaries(summaries, c.chunkSize)
	parts := make([]artifact.Summary, len(chunks))

	var g errgroup.Group
	g.SetLimit(maxConcurrentCalls)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			title := fmt.Sprintf("Summary Part %d", i+1)
			markdown, err := c.caller.callUnchecked(ctx, buildPartPrompt(label, i+1, chunk), composeOptions())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warnf("[Composer] %s 合成失败，本地渲染: %v", title, err)
				markdown = artifact.RenderMarkdown("", chunk)
			}
			parts[i] = artifact.Summary{
				Topic:   title,
				Title:   title,
				Content: []artifact.Item{artifact.RawItem(strings.TrimSpace(markdown))},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func chunkSummaries(summaries []artifact.Summary, size int) [][]artifact.Summary {
	var chunks [][]artifact.Summary
	for start := 0; start < len(summaries); start += size {
		end := start + size
		if end > len(summaries) {
			end = len(summaries)
		}
		chunks = append(chunks, summaries[start:end])
	}
	return chunks
}

// ContractionRounds 给定数量和分块大小时的收缩轮数
func ContractionRounds(n, chunkSize int) int {
	if chunkSize < 2 {
		chunkSize = DefaultChunkSize
	}
	rounds := 0
	for n > chunkSize {
		n = (n + chunkSize - 1) / chunkSize
		rounds++
	}
	return rounds
}
