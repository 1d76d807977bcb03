package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fachebot/ai-news-digest/internal/aggregator"
	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/fingerprint"
	"github.com/fachebot/ai-news-digest/internal/grouper"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/summarizer"
	"github.com/fachebot/ai-news-digest/internal/usage"
	"github.com/google/uuid"
)

// Source 内容来源，返回 [start, end) 内的记录
type Source interface {
	Fetch(ctx context.Context, start, end time.Time, typeFilter []string) ([]content.Record, error)
}

// Store 报告存储；GetArtifact 未找到时返回 nil, nil
type Store interface {
	GetArtifact(ctx context.Context, typ, date string, granularity artifact.Granularity) (*artifact.Stored, error)
	ListDailyArtifacts(ctx context.Context, typ string, start, end time.Time) ([]*artifact.Stored, error)
}

// Observer 接收调用用量和运行结果，用于指标上报
type Observer interface {
	usage.Observer
	ObserveRun(kind, outcome string)
}

type Deps struct {
	Source   Source
	Store    Store
	LLM      summarizer.LLMCaller
	Observer Observer
}

// Options GenerateDaily 使用 Force、TokenBudget 和 Label，Strategy 只用于区间报告
type Options struct {
	Strategy    artifact.Strategy
	Force       bool
	TokenBudget int64
	Label       string
}

// Result 一次生成的结果；Skipped 表示没有内容或内容未变化，不是失败
type Result struct {
	Success    bool
	Skipped    bool
	Artifact   *artifact.Report
	UsageStats usage.Stats
	Error      error
}

const (
	RunKindDaily = "daily"
	RunKindRange = "range"

	OutcomeSuccess   = "success"
	OutcomeSkipped   = "skipped"
	OutcomeTruncated = "truncated"
	OutcomeFailed    = "failed"
)

type Engine struct {
	deps       Deps
	cfg        *config.Summary
	grouper    *grouper.Grouper
	aggregator *aggregator.Aggregator
	now        func() time.Time
}

// New 创建引擎，缺少必需组件时返回 ConfigurationError
func New(deps Deps, cfg *config.Summary) (*Engine, error) {
	switch {
	case cfg == nil:
		return nil, &ConfigurationError{Missing: "Summary 配置"}
	case deps.Source == nil:
		return nil, &ConfigurationError{Missing: "内容来源"}
	case deps.Store == nil:
		return nil, &ConfigurationError{Missing: "报告存储"}
	case deps.LLM == nil:
		return nil, &ConfigurationError{Missing: "LLM 客户端"}
	}

	c := *cfg
	c.ApplyDefaults()
	return &Engine{
		deps:    deps,
		cfg:     &c,
		grouper: grouper.New(c.BlockedTopics),
		aggregator: aggregator.New(deps.Source, deps.Store, aggregator.Options{
			OutputType:     c.OutputType,
			TypeFilter:     c.TypeFilter,
			MaxItemsPerDay: c.MaxItemsPerDay,
			SampleSize:     c.HybridSampleSize,
		}),
		now: time.Now,
	}, nil
}

// run 单次调用内的状态
type run struct {
	id      string
	kind    string
	tracker *usage.Tracker
}

func (e *Engine) newRun(kind string, tokenBudget int64) *run {
	if tokenBudget <= 0 {
		tokenBudget = e.cfg.TokenBudget
	}
	var budget *usage.Budget
	if tokenBudget > 0 {
		budget = &usage.Budget{MaxTokens: tokenBudget}
	}
	tracker := usage.NewTracker(budget, e.deps.LLM.ModelPricing())
	if e.deps.Observer != nil {
		tracker = tracker.WithObserver(e.deps.Observer)
	}
	return &run{id: uuid.NewString(), kind: kind, tracker: tracker}
}

func (e *Engine) finish(r *run, result *Result) *Result {
	result.UsageStats = r.tracker.Stats()

	outcome := OutcomeSuccess
	switch {
	case result.Error != nil:
		outcome = OutcomeFailed
		logger.Errorf("[Engine] [%s] 生成失败: %v", r.id, result.Error)
	case result.Skipped:
		outcome = OutcomeSkipped
	case result.Artifact != nil && result.Artifact.Truncated:
		outcome = OutcomeTruncated
	}
	if e.deps.Observer != nil {
		e.deps.Observer.ObserveRun(r.kind, outcome)
	}
	logger.Infof("[Engine] [%s] 结束: %s, 调用 %d 次, tokens %d, 费用 $%.4f",
		r.id, outcome, result.UsageStats.Calls, result.UsageStats.TotalTokens, result.UsageStats.CostUSD)
	return result
}

func failed(err error) *Result {
	return &Result{Success: false, Error: err}
}

func skipped() *Result {
	return &Result{Success: true, Skipped: true}
}

// GenerateDaily 生成指定日期（UTC）的每日报告
func (e *Engine) GenerateDaily(ctx context.Context, dateStr string, opts Options) *Result {
	r := e.newRun(RunKindDaily, opts.TokenBudget)
	logger.Infof("[Engine] [%s] 开始生成 %s 的每日报告, force=%v", r.id, dateStr, opts.Force)

	day, err := time.ParseInLocation(aggregator.DateLayout, dateStr, time.UTC)
	if err != nil {
		return e.finish(r, failed(fmt.Errorf("日期格式错误: %w", err)))
	}

	records, err := e.deps.Source.Fetch(ctx, day, day.AddDate(0, 0, 1), e.cfg.TypeFilter)
	if err != nil {
		return e.finish(r, failed(fmt.Errorf("获取内容失败: %w", err)))
	}
	if len(records) == 0 {
		logger.Infof("[Engine] [%s] %s 没有内容，跳过", r.id, dateStr)
		return e.finish(r, skipped())
	}

	stored, err := e.deps.Store.GetArtifact(ctx, e.cfg.OutputType, dateStr, artifact.GranularityDaily)
	if err != nil {
		return e.finish(r, failed(fmt.Errorf("读取已有报告失败: %w", err)))
	}
	decision := fingerprint.Check(records, stored, opts.Force)
	if decision.Skip {
		logger.Infof("[Engine] [%s] %s 的内容未变化，沿用已有报告", r.id, dateStr)
		return e.finish(r, skipped())
	}

	label := opts.Label
	if label == "" {
		label = fmt.Sprintf("Daily Report - %s", dateStr)
	}
	report, err := e.build(ctx, r, label, records, nil)
	if err != nil {
		return e.finish(r, failed(err))
	}
	report.Date = dateStr
	report.StartDate = dateStr
	report.EndDate = dateStr
	report.Granularity = artifact.GranularityDaily
	report.Fingerprint = completeFingerprint(report, decision.Fingerprint)

	return e.finish(r, &Result{Success: true, Artifact: report})
}

// GenerateForRange 生成 [startDate, endDate]（含两端）的区间报告
func (e *Engine) GenerateForRange(ctx context.Context, startDate, endDate string, opts Options) *Result {
	r := e.newRun(RunKindRange, opts.TokenBudget)

	strategy := opts.Strategy
	if strategy == "" {
		strategy = artifact.Strategy(e.cfg.RangeStrategy)
	}
	strategy, err := artifact.ParseStrategy(string(strategy))
	if err != nil {
		return e.finish(r, failed(err))
	}
	logger.Infof("[Engine] [%s] 开始生成 %s ~ %s 的区间报告, strategy=%s, force=%v", r.id, startDate, endDate, strategy, opts.Force)

	start, end, err := aggregator.ParseRange(startDate, endDate)
	if err != nil {
		return e.finish(r, failed(err))
	}
	granularity := aggregator.GranularityFor(start, end)
	key := aggregator.RangeKey(start, end)

	input, err := e.aggregator.Collect(ctx, start, end, strategy)
	if err != nil {
		return e.finish(r, failed(err))
	}
	if input.Empty() {
		logger.Infof("[Engine] [%s] %s 没有可用数据，跳过", r.id, key)
		return e.finish(r, skipped())
	}

	stored, err := e.deps.Store.GetArtifact(ctx, e.cfg.OutputType, key, granularity)
	if err != nil {
		return e.finish(r, failed(fmt.Errorf("读取已有报告失败: %w", err)))
	}
	if fingerprint.ShouldSkip(input.Fingerprint, stored, opts.Force) {
		logger.Infof("[Engine] [%s] %s 的数据未变化，沿用已有报告", r.id, key)
		return e.finish(r, skipped())
	}

	label := opts.Label
	if label == "" {
		label = rangeLabel(granularity, startDate, endDate)
	}
	report, err := e.build(ctx, r, label, input.Records, input.Summaries)
	if err != nil {
		return e.finish(r, failed(err))
	}
	report.Date = key
	report.StartDate = startDate
	report.EndDate = endDate
	report.Granularity = granularity
	report.Strategy = input.Strategy
	report.Fingerprint = completeFingerprint(report, input.Fingerprint)

	return e.finish(r, &Result{Success: true, Artifact: report})
}

// completeFingerprint 截断的报告不记录指纹，下次运行会重新生成
func completeFingerprint(report *artifact.Report, fp string) string {
	if report.Truncated {
		return ""
	}
	return fp
}

// build 分组总结原始记录，连同已有总结一起合成报告
func (e *Engine) build(ctx context.Context, r *run, label string, records []content.Record, prepared []artifact.Summary) (*artifact.Report, error) {
	var summaries []artifact.Summary
	truncated := false
	if len(records) > 0 {
		groups := e.grouper.Group(records)
		logger.Infof("[Engine] [%s] %d 条内容分为 %d 个话题", r.id, len(records), len(groups))

		var err error
		summaries, truncated, err = e.summarizeGroups(ctx, r, groups)
		if err != nil {
			return nil, err
		}
	}
	summaries = append(summaries, prepared...)

	composer := summarizer.NewComposer(e.deps.LLM, r.tracker, e.cfg.ChunkSize)
	comp, err := composer.Compose(ctx, summaries, label)
	if err != nil {
		return nil, fmt.Errorf("合成报告失败: %w", err)
	}
	if comp.Local && r.tracker.Exhausted() {
		truncated = true
	}
	logger.Infof("[Engine] [%s] 报告合成完成: %d 个总结, %d 轮收缩, 本地渲染=%v", r.id, len(summaries), comp.Rounds, comp.Local)

	return &artifact.Report{
		Type:        e.cfg.OutputType,
		Title:       label,
		Categories:  summaries,
		Markdown:    comp.Markdown,
		Truncated:   truncated,
		GeneratedAt: e.now().Unix(),
	}, nil
}

// summarizeGroups 按分组顺序逐个总结；每组之前检查预算，耗尽后停止并返回已有结果
func (e *Engine) summarizeGroups(ctx context.Context, r *run, groups []grouper.Group) ([]artifact.Summary, bool, error) {
	ts := summarizer.NewTopicSummarizer(e.deps.LLM, r.tracker)
	summaries := make([]artifact.Summary, 0, len(groups))

	for i, g := range groups {
		if len(g.Members) == 0 {
			continue
		}
		if err := r.tracker.Check(); err != nil {
			logger.Warnf("[Engine] [%s] 预算耗尽，剩余 %d 个话题未总结", r.id, len(groups)-i)
			return summaries, true, nil
		}

		summary, err := ts.SummarizeTopic(ctx, g.Topic, g.Members)
		if err != nil {
			if errors.Is(err, usage.ErrBudgetExhausted) {
				logger.Warnf("[Engine] [%s] 预算耗尽，剩余 %d 个话题未总结", r.id, len(groups)-i)
				return summaries, true, nil
			}
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			logger.Warnf("[Engine] [%s] 话题 %s 总结失败，跳过: %v", r.id, g.Topic, err)
			continue
		}
		logger.Debugf("[Engine] [%s] 话题 %d/%d %s 完成 (%d 条内容)", r.id, i+1, len(groups), g.Topic, len(g.Members))
		summaries = append(summaries, *summary)
	}
	return summaries, false, nil
}

func rangeLabel(g artifact.Granularity, startDate, endDate string) string {
	switch g {
	case artifact.GranularityWeekly:
		return fmt.Sprintf("Weekly Report - %s to %s", startDate, endDate)
	case artifact.GranularityMonthly:
		return fmt.Sprintf("Monthly Report - %s to %s", startDate, endDate)
	default:
		return fmt.Sprintf("Report - %s to %s", startDate, endDate)
	}
}
