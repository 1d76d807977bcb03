package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/fingerprint"
	"github.com/fachebot/ai-news-digest/internal/logger"
)

const (
	DateLayout = "2006-01-02"

	defaultMaxItemsPerDay = 200
	defaultSampleSize     = 20
	supplementTopic       = "supplement"
	supplementTextChars   = 300
)

// Source 内容来源，返回 [start, end) 内的记录（便于测试注入 mock）
type Source interface {
	Fetch(ctx context.Context, start, end time.Time, typeFilter []string) ([]content.Record, error)
}

// DailyLister 读取区间内已生成的每日报告
type DailyLister interface {
	ListDailyArtifacts(ctx context.Context, typ string, start, end time.Time) ([]*artifact.Stored, error)
}

// Options 区间聚合参数
type Options struct {
	OutputType     string
	TypeFilter     []string
	MaxItemsPerDay int
	SampleSize     int
}

// Input 按策略准备好的区间数据
type Input struct {
	// Strategy 实际使用的策略，hybrid 回退时为 raw_content
	Strategy artifact.Strategy
	// Records raw_content 策略下需要分组总结的记录
	Records []content.Record
	// Summaries 可直接交给报告合成的总结（每日报告内容和 hybrid 补充样本）
	Summaries   []artifact.Summary
	Daily       []*artifact.Stored
	Fingerprint string
}

// Empty 区间内没有任何可用数据
func (in *Input) Empty() bool {
	return len(in.Records) == 0 && len(in.Summaries) == 0
}

// Aggregator 为多日报告选择数据来源
type Aggregator struct {
	source Source
	store  DailyLister
	opts   Options
}

func New(source Source, store DailyLister, opts Options) *Aggregator {
	if opts.MaxItemsPerDay <= 0 {
		opts.MaxItemsPerDay = defaultMaxItemsPerDay
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = defaultSampleSize
	}
	return &Aggregator{source: source, store: store, opts: opts}
}

// Collect 按策略收集 [start, end] 日期区间（含两端）的数据
func (a *Aggregator) Collect(ctx context.Context, start, end time.Time, strategy artifact.Strategy) (*Input, error) {
	switch strategy {
	case artifact.StrategyDailySummaries:
		return a.collectDaily(ctx, start, end)
	case artifact.StrategyRawContent:
		return a.collectRaw(ctx, start, end)
	case artifact.StrategyHybrid:
		return a.collectHybrid(ctx, start, end)
	}
	return nil, fmt.Errorf("未知的区间策略: %s", strategy)
}

func (a *Aggregator) collectDaily(ctx context.Context, start, end time.Time) (*Input, error) {
	daily, err := a.listDaily(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return &Input{
		Strategy:    artifact.StrategyDailySummaries,
		Summaries:   DailySummaries(daily),
		Daily:       daily,
		Fingerprint: fingerprint.Artifacts(daily),
	}, nil
}

func (a *Aggregator) collectRaw(ctx context.Context, start, end time.Time) (*Input, error) {
	records, err := a.FetchCapped(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return &Input{
		Strategy:    artifact.StrategyRawContent,
		Records:     records,
		Fingerprint: fingerprint.Records(records),
	}, nil
}

func (a *Aggregator) collectHybrid(ctx context.Context, start, end time.Time) (*Input, error) {
	daily, err := a.listDaily(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		logger.Infof("[Aggregator] %s ~ %s 没有每日报告，hybrid 回退为 raw_content", start.Format(DateLayout), end.Format(DateLayout))
		return a.collectRaw(ctx, start, end)
	}

	records, err := a.FetchCapped(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sample := Sample(records, a.opts.SampleSize)

	summaries := DailySummaries(daily)
	if len(sample) > 0 {
		summaries = append(summaries, Supplement(sample))
	}

	tuples := make([]fingerprint.Tuple, 0, len(daily)+len(sample))
	for _, d := range daily {
		tuples = append(tuples, fingerprint.StoredTuple(d))
	}
	for _, r := range sample {
		tuples = append(tuples, fingerprint.RecordTuple(r))
	}

	return &Input{
		Strategy:    artifact.StrategyHybrid,
		Summaries:   summaries,
		Daily:       daily,
		Fingerprint: fingerprint.Compute(tuples),
	}, nil
}

func (a *Aggregator) listDaily(ctx context.Context, start, end time.Time) ([]*artifact.Stored, error) {
	daily, err := a.store.ListDailyArtifacts(ctx, a.opts.OutputType, start, end)
	if err != nil {
		return nil, fmt.Errorf("读取每日报告失败: %w", err)
	}
	sort.SliceStable(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })
	return daily, nil
}

// FetchCapped 逐日读取原始记录，每天最多 MaxItemsPerDay 条（按时间取最早的）
func (a *Aggregator) FetchCapped(ctx context.Context, start, end time.Time) ([]content.Record, error) {
	var all []content.Record
	for _, day := range Days(start, end) {
		records, err := a.source.Fetch(ctx, day, day.AddDate(0, 0, 1), a.opts.TypeFilter)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 的内容失败: %w", day.Format(DateLayout), err)
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })
		if len(records) > a.opts.MaxItemsPerDay {
			logger.Debugf("[Aggregator] %s 有 %d 条内容，截取前 %d 条", day.Format(DateLayout), len(records), a.opts.MaxItemsPerDay)
			records = records[:a.opts.MaxItemsPerDay]
		}
		all = append(all, records...)
	}
	return all, nil
}

// DailySummaries 将每日报告展开为可合成的总结，标题带上日期
func DailySummaries(daily []*artifact.Stored) []artifact.Summary {
	var out []artifact.Summary
	for _, d := range daily {
		for _, s := range d.Categories() {
			title := s.Title
			if title == "" {
				title = s.Topic
			}
			if title != d.Date {
				title = d.Date + " " + title
			}
			out = append(out, artifact.Summary{Topic: s.Topic, Title: title, Content: s.Content})
		}
	}
	return out
}

// Sample 等间隔抽样，结果只取决于输入顺序
func Sample(records []content.Record, size int) []content.Record {
	n := len(records)
	if size <= 0 || n == 0 {
		return nil
	}
	if n <= size {
		return append([]content.Record(nil), records...)
	}
	out := make([]content.Record, size)
	for i := 0; i < size; i++ {
		out[i] = records[i*n/size]
	}
	return out
}

// Supplement 将抽样记录直接包装为补充总结，不调用模型
func Supplement(sample []content.Record) artifact.Summary {
	items := make([]artifact.Item, 0, len(sample))
	for _, r := range sample {
		text := content.PlainText(r)
		if r.Title != "" {
			text = r.Title + ": " + text
		}
		item := artifact.RawItem(content.Truncate(text, supplementTextChars))
		if r.Link != "" {
			item.Sources = append(item.Sources, r.Link)
		}
		item.Images = append(item.Images, r.MetaStrings("images")...)
		item.Videos = append(item.Videos, r.MetaStrings("videos")...)
		items = append(items, item.Normalize())
	}
	return artifact.Summary{Topic: supplementTopic, Title: "Supplement", Content: items}
}

// Days 返回 [start, end] 内每一天的 UTC 零点
func Days(start, end time.Time) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
