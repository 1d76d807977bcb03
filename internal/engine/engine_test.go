package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fachebot/ai-news-digest/internal/aggregator"
	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/llm"
	"github.com/fachebot/ai-news-digest/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSource 按时间区间过滤固定记录
type mockSource struct {
	records []content.Record
	err     error
}

func (m *mockSource) Fetch(ctx context.Context, start, end time.Time, typeFilter []string) ([]content.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []content.Record
	for _, r := range m.records {
		if r.Timestamp >= start.Unix() && r.Timestamp < end.Unix() {
			out = append(out, r)
		}
	}
	return out, nil
}

// mockStore 内存报告存储
type mockStore struct {
	mu        sync.Mutex
	artifacts map[string]*artifact.Stored
	err       error
}

func newMockStore() *mockStore {
	return &mockStore{artifacts: make(map[string]*artifact.Stored)}
}

func storeKey(typ, date string, g artifact.Granularity) string {
	return typ + "|" + date + "|" + string(g)
}

func (m *mockStore) GetArtifact(ctx context.Context, typ, date string, g artifact.Granularity) (*artifact.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.artifacts[storeKey(typ, date, g)], nil
}

func (m *mockStore) ListDailyArtifacts(ctx context.Context, typ string, start, end time.Time) ([]*artifact.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := start.Format(aggregator.DateLayout), end.Format(aggregator.DateLayout)
	var out []*artifact.Stored
	for _, s := range m.artifacts {
		if s.Type == typ && s.Granularity == artifact.GranularityDaily && s.Date >= from && s.Date <= to {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *mockStore) save(t *testing.T, report *artifact.Report) {
	stored, err := report.ToStored()
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[storeKey(stored.Type, stored.Date, stored.Granularity)] = stored
}

// fakeLLM 每次调用固定消耗 100 tokens
type fakeLLM struct {
	mu    sync.Mutex
	calls int
	json  int
}

const callCost = 100

func (f *fakeLLM) Summarize(ctx context.Context, prompt string, opts llm.Options) (*llm.Result, error) {
	f.mu.Lock()
	f.calls++
	if opts.JSONMode {
		f.json++
	}
	f.mu.Unlock()

	text := "## Report\n\n- generated"
	if opts.JSONMode {
		text = `{"title":"Topic","content":[{"text":"something happened","sources":["https://example.com"],"images":[],"videos":[]}]}`
	}
	return &llm.Result{Text: text, Usage: usage.Usage{PromptTokens: 80, CompletionTokens: 20}}, nil
}

func (f *fakeLLM) ContextLength() int { return 100000 }

func (f *fakeLLM) ModelPricing() usage.Pricing {
	return usage.Pricing{PromptPerToken: 1e-6, CompletionPerToken: 2e-6}
}

func (f *fakeLLM) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	runs  []string
}

func (o *recordingObserver) ObserveCall(u usage.Usage, cost float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
}

func (o *recordingObserver) ObserveRun(kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, kind+":"+outcome)
}

var testDay = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

// topicRecords 生成 n 个话题，每个话题 2 条记录
func topicRecords(day time.Time, n int) []content.Record {
	var out []content.Record
	for i := 0; i < n; i++ {
		topic := fmt.Sprintf("topic-%02d", i)
		for j := 0; j < 2; j++ {
			out = append(out, content.Record{
				ID:        fmt.Sprintf("%s-%s-%d", day.Format(aggregator.DateLayout), topic, j),
				Type:      "discordRawData",
				Source:    "discord",
				Text:      fmt.Sprintf("message %d about %s", j, topic),
				Topics:    []string{topic},
				Timestamp: day.Add(time.Duration(i*10+j) * time.Minute).Unix(),
			})
		}
	}
	return out
}

func newTestEngine(t *testing.T, source Source, store Store, llmClient *fakeLLM, obs Observer) *Engine {
	e, err := New(Deps{Source: source, Store: store, LLM: llmClient, Observer: obs}, &config.Summary{})
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestNew_ConfigurationError(t *testing.T) {
	fake := &fakeLLM{}
	tests := []struct {
		name string
		deps Deps
		cfg  *config.Summary
	}{
		{"缺少配置", Deps{Source: &mockSource{}, Store: newMockStore(), LLM: fake}, nil},
		{"缺少内容来源", Deps{Store: newMockStore(), LLM: fake}, &config.Summary{}},
		{"缺少存储", Deps{Source: &mockSource{}, LLM: fake}, &config.Summary{}},
		{"缺少 LLM", Deps{Source: &mockSource{}, Store: newMockStore()}, &config.Summary{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.deps, tt.cfg)
			assert.Nil(t, e)
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
	assert.Equal(t, 0, fake.count())
}

func TestGenerateDaily_NoRecordsIsSkipped(t *testing.T) {
	fake := &fakeLLM{}
	obs := &recordingObserver{}
	e := newTestEngine(t, &mockSource{}, newMockStore(), fake, obs)

	result := e.GenerateDaily(context.Background(), "2025-02-01", Options{})
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Nil(t, result.Artifact)
	assert.NoError(t, result.Error)
	assert.Equal(t, 0, fake.count())
	assert.Equal(t, []string{"daily:skipped"}, obs.runs)
}

func TestGenerateDaily_Success(t *testing.T) {
	fake := &fakeLLM{}
	obs := &recordingObserver{}
	e := newTestEngine(t, &mockSource{records: topicRecords(testDay, 3)}, newMockStore(), fake, obs)

	result := e.GenerateDaily(context.Background(), "2025-02-01", Options{})
	require.True(t, result.Success, "%v", result.Error)
	require.NotNil(t, result.Artifact)

	report := result.Artifact
	assert.Equal(t, "dailySummary", report.Type)
	assert.Equal(t, "2025-02-01", report.Date)
	assert.Equal(t, artifact.GranularityDaily, report.Granularity)
	assert.Equal(t, "Daily Report - 2025-02-01", report.Title)
	assert.Len(t, report.Categories, 3)
	assert.NotEmpty(t, report.Fingerprint)
	assert.False(t, report.Truncated)

	// 3 个话题 + 1 次合成
	assert.Equal(t, 4, fake.count())
	assert.Equal(t, 4, result.UsageStats.Calls)
	assert.Equal(t, int64(4*callCost), result.UsageStats.TotalTokens)
	assert.InDelta(t, 4*(80e-6+40e-6), result.UsageStats.CostUSD, 1e-12)
	assert.Equal(t, 4, obs.calls)
	assert.Equal(t, []string{"daily:success"}, obs.runs)
}

func TestGenerateDaily_SkipLaw(t *testing.T) {
	source := &mockSource{records: topicRecords(testDay, 3)}
	store := newMockStore()

	first := newTestEngine(t, source, store, &fakeLLM{}, nil).GenerateDaily(context.Background(), "2025-02-01", Options{})
	require.True(t, first.Success)
	store.save(t, first.Artifact)

	fake := &fakeLLM{}
	e := newTestEngine(t, source, store, fake, nil)
	second := e.GenerateDaily(context.Background(), "2025-02-01", Options{})
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Equal(t, 0, fake.count(), "指纹一致时不调用模型")

	forced := e.GenerateDaily(context.Background(), "2025-02-01", Options{Force: true})
	assert.True(t, forced.Success)
	assert.False(t, forced.Skipped)
	assert.Greater(t, fake.count(), 0)

	// 内容变化后重新生成
	source.records[0].Text = "edited"
	changed := e.GenerateDaily(context.Background(), "2025-02-01", Options{})
	assert.False(t, changed.Skipped)
}

func TestGenerateDaily_RunLevelFailures(t *testing.T) {
	fake := &fakeLLM{}

	result := newTestEngine(t, &mockSource{}, newMockStore(), fake, nil).GenerateDaily(context.Background(), "02/01/2025", Options{})
	assert.False(t, result.Success)
	assert.ErrorContains(t, result.Error, "日期格式错误")

	result = newTestEngine(t, &mockSource{err: errors.New("db down")}, newMockStore(), fake, nil).GenerateDaily(context.Background(), "2025-02-01", Options{})
	assert.False(t, result.Success)
	assert.ErrorContains(t, result.Error, "获取内容失败")

	store := newMockStore()
	store.err = errors.New("storage unreachable")
	result = newTestEngine(t, &mockSource{records: topicRecords(testDay, 1)}, store, fake, nil).GenerateDaily(context.Background(), "2025-02-01", Options{})
	assert.False(t, result.Success)
	assert.ErrorContains(t, result.Error, "读取已有报告失败")

	assert.Equal(t, 0, fake.count())
}

func TestGenerateDaily_BudgetTruncation(t *testing.T) {
	const groups = 10
	for _, m := range []int{1, 3, 5, 9} {
		t.Run(fmt.Sprintf("预算允许 %d 次调用", m), func(t *testing.T) {
			fake := &fakeLLM{}
			obs := &recordingObserver{}
			e := newTestEngine(t, &mockSource{records: topicRecords(testDay, groups)}, newMockStore(), fake, obs)

			result := e.GenerateDaily(context.Background(), "2025-02-01", Options{TokenBudget: int64(m * callCost)})
			require.True(t, result.Success, "%v", result.Error)
			require.NotNil(t, result.Artifact)

			n := len(result.Artifact.Categories)
			assert.GreaterOrEqual(t, n, m)
			assert.LessOrEqual(t, n, m+1)
			assert.Less(t, n, groups)
			assert.True(t, result.Artifact.Truncated)
			assert.NotEmpty(t, result.Artifact.Markdown)
			assert.LessOrEqual(t, result.UsageStats.TotalTokens, int64((m+1)*callCost))
			assert.Equal(t, []string{"daily:truncated"}, obs.runs)
		})
	}
}

func TestGenerateDaily_TruncatedReportIsRegenerated(t *testing.T) {
	source := &mockSource{records: topicRecords(testDay, 10)}
	store := newMockStore()

	truncated := newTestEngine(t, source, store, &fakeLLM{}, nil).GenerateDaily(context.Background(), "2025-02-01", Options{TokenBudget: 2 * callCost})
	require.True(t, truncated.Success, "%v", truncated.Error)
	require.True(t, truncated.Artifact.Truncated)
	assert.Empty(t, truncated.Artifact.Fingerprint, "截断的报告不记录指纹")
	store.save(t, truncated.Artifact)

	// 预算放开后重新生成完整报告
	fake := &fakeLLM{}
	e := newTestEngine(t, source, store, fake, nil)
	full := e.GenerateDaily(context.Background(), "2025-02-01", Options{})
	require.True(t, full.Success, "%v", full.Error)
	assert.False(t, full.Skipped)
	require.NotNil(t, full.Artifact)
	assert.False(t, full.Artifact.Truncated)
	assert.Len(t, full.Artifact.Categories, 10)
	assert.NotEmpty(t, full.Artifact.Fingerprint)
	calls := fake.count()
	assert.Greater(t, calls, 10)
	store.save(t, full.Artifact)

	// 完整报告之后才按指纹跳过
	again := e.GenerateDaily(context.Background(), "2025-02-01", Options{})
	assert.True(t, again.Skipped)
	assert.Equal(t, calls, fake.count())
}

func TestGenerateDaily_CustomLabel(t *testing.T) {
	e := newTestEngine(t, &mockSource{records: topicRecords(testDay, 1)}, newMockStore(), &fakeLLM{}, nil)

	result := e.GenerateDaily(context.Background(), "2025-02-01", Options{Label: "Discord Digest"})
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, "Discord Digest", result.Artifact.Title)
}

func TestGenerateDaily_TwentyThreeGroupsWithBudget(t *testing.T) {
	fake := &fakeLLM{}
	e := newTestEngine(t, &mockSource{records: topicRecords(testDay, 23)}, newMockStore(), fake, nil)

	result := e.GenerateDaily(context.Background(), "2025-02-01", Options{TokenBudget: 8 * callCost})
	require.True(t, result.Success, "%v", result.Error)
	assert.NoError(t, result.Error)
	assert.LessOrEqual(t, len(result.Artifact.Categories), 9)
	assert.LessOrEqual(t, fake.count(), 9)
}

func dailyReport(date string) *artifact.Report {
	return &artifact.Report{
		Type:        "dailySummary",
		Date:        date,
		StartDate:   date,
		EndDate:     date,
		Granularity: artifact.GranularityDaily,
		Fingerprint: "fp-" + date,
		Categories: []artifact.Summary{
			{Topic: "ai", Title: "AI", Content: []artifact.Item{artifact.RawItem("ai news on " + date)}},
			{Topic: "defi", Title: "DeFi", Content: []artifact.Item{artifact.RawItem("defi news on " + date)}},
		},
		Markdown: "# Daily Report - " + date,
	}
}

func TestGenerateForRange_DailySummaries(t *testing.T) {
	store := newMockStore()
	for _, d := range []string{"2025-02-01", "2025-02-02", "2025-02-03"} {
		store.save(t, dailyReport(d))
	}
	fake := &fakeLLM{}
	e := newTestEngine(t, &mockSource{}, store, fake, nil)

	result := e.GenerateForRange(context.Background(), "2025-02-01", "2025-02-07", Options{Strategy: artifact.StrategyDailySummaries})
	require.True(t, result.Success, "%v", result.Error)
	report := result.Artifact
	assert.Equal(t, "2025-02-01_2025-02-07", report.Date)
	assert.Equal(t, "2025-02-01", report.StartDate)
	assert.Equal(t, "2025-02-07", report.EndDate)
	assert.Equal(t, artifact.GranularityWeekly, report.Granularity)
	assert.Equal(t, artifact.StrategyDailySummaries, report.Strategy)
	assert.Equal(t, "Weekly Report - 2025-02-01 to 2025-02-07", report.Title)
	assert.Len(t, report.Categories, 6)
	assert.Equal(t, 0, fake.json, "不重新总结原始内容")
	assert.Equal(t, 1, fake.count())

	// 每日报告未变化时跳过
	store.save(t, report)
	again := e.GenerateForRange(context.Background(), "2025-02-01", "2025-02-07", Options{Strategy: artifact.StrategyDailySummaries})
	assert.True(t, again.Skipped)
	assert.Equal(t, 1, fake.count())
}

func TestGenerateForRange_HybridFallbackMatchesRawContent(t *testing.T) {
	var records []content.Record
	records = append(records, topicRecords(testDay, 3)...)
	records = append(records, topicRecords(testDay.AddDate(0, 0, 2), 2)...)
	source := &mockSource{records: records}

	hybrid := newTestEngine(t, source, newMockStore(), &fakeLLM{}, nil).
		GenerateForRange(context.Background(), "2025-02-01", "2025-02-07", Options{Strategy: artifact.StrategyHybrid})
	raw := newTestEngine(t, source, newMockStore(), &fakeLLM{}, nil).
		GenerateForRange(context.Background(), "2025-02-01", "2025-02-07", Options{Strategy: artifact.StrategyRawContent})

	require.True(t, hybrid.Success, "%v", hybrid.Error)
	require.True(t, raw.Success, "%v", raw.Error)
	assert.Equal(t, raw.Artifact, hybrid.Artifact)
	assert.Equal(t, artifact.StrategyRawContent, hybrid.Artifact.Strategy)
	assert.Equal(t, raw.UsageStats, hybrid.UsageStats)
}

func TestGenerateForRange_Hybrid(t *testing.T) {
	store := newMockStore()
	store.save(t, dailyReport("2025-02-01"))
	fake := &fakeLLM{}
	e := newTestEngine(t, &mockSource{records: topicRecords(testDay.AddDate(0, 0, 1), 4)}, store, fake, nil)

	result := e.GenerateForRange(context.Background(), "2025-02-01", "2025-02-03", Options{Strategy: artifact.StrategyHybrid})
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, artifact.StrategyHybrid, result.Artifact.Strategy)
	// 2 个每日分类 + 1 个补充样本
	assert.Len(t, result.Artifact.Categories, 3)
	assert.Equal(t, "supplement", result.Artifact.Categories[2].Topic)
	assert.Equal(t, 0, fake.json, "补充样本不调用模型")
}

func TestGenerateForRange_Failures(t *testing.T) {
	e := newTestEngine(t, &mockSource{}, newMockStore(), &fakeLLM{}, nil)

	result := e.GenerateForRange(context.Background(), "2025-02-07", "2025-02-01", Options{})
	assert.False(t, result.Success)
	assert.Error(t, result.Error)

	result = e.GenerateForRange(context.Background(), "2025-02-01", "2025-02-07", Options{Strategy: "weekly_magic"})
	assert.False(t, result.Success)
	assert.ErrorContains(t, result.Error, "未知的区间策略")

	result = e.GenerateForRange(context.Background(), "2025-02-01", "2025-02-07", Options{})
	assert.True(t, result.Success)
	assert.True(t, result.Skipped, "没有每日报告时 daily_summaries 跳过")
}

func TestGenerateForRange_MonthlyLabelAndCustomLabel(t *testing.T) {
	store := newMockStore()
	store.save(t, dailyReport("2025-02-10"))
	e := newTestEngine(t, &mockSource{}, store, &fakeLLM{}, nil)

	result := e.GenerateForRange(context.Background(), "2025-02-01", "2025-02-28", Options{})
	require.True(t, result.Success)
	assert.Equal(t, artifact.GranularityMonthly, result.Artifact.Granularity)
	assert.Equal(t, "Monthly Report - 2025-02-01 to 2025-02-28", result.Artifact.Title)

	result = e.GenerateForRange(context.Background(), "2025-01-01", "2025-03-31", Options{Label: "Q1", Force: true})
	require.True(t, result.Success)
	assert.Equal(t, artifact.GranularityCustom, result.Artifact.Granularity)
	assert.Equal(t, "Q1", result.Artifact.Title)
}
