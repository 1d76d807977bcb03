package artifact

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item 总结中的一条内容
type Item struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
	Images  []string `json:"images"`
	Videos  []string `json:"videos"`
}

// Summary 单个话题（或报告合成分块）的结构化总结
type Summary struct {
	Topic   string `json:"topic,omitempty"`
	Title   string `json:"title"`
	Content []Item `json:"content"`
}

// Granularity 报告的时间粒度
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
	GranularityCustom  Granularity = "custom"
)

// Strategy 区间报告的数据来源策略
type Strategy string

const (
	StrategyDailySummaries Strategy = "daily_summaries"
	StrategyRawContent     Strategy = "raw_content"
	StrategyHybrid         Strategy = "hybrid"
)

// ParseStrategy 解析策略名称
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyDailySummaries, StrategyRawContent, StrategyHybrid:
		return Strategy(s), nil
	case "":
		return StrategyDailySummaries, nil
	}
	return "", fmt.Errorf("未知的区间策略: %s", s)
}

// Report 每日或区间报告
type Report struct {
	Type        string      `json:"type"`
	Title       string      `json:"title"`
	Date        string      `json:"date"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Granularity Granularity `json:"granularity"`
	Strategy    Strategy    `json:"strategy,omitempty"`
	Fingerprint string      `json:"fingerprint"`
	Categories  []Summary   `json:"categories"`
	Markdown    string      `json:"markdown"`
	Truncated   bool        `json:"truncated,omitempty"`
	GeneratedAt int64       `json:"generatedAt"`
}

// Stored 持久化的报告，按 (Type, Date, Granularity) 唯一
type Stored struct {
	Type        string
	Date        string
	Granularity Granularity
	Fingerprint string
	Markdown    string
	JSON        []byte
	UpdatedAt   time.Time
}

// ToStored 转换为持久化形式
func (r *Report) ToStored() (*Stored, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("序列化报告失败: %w", err)
	}
	return &Stored{
		Type:        r.Type,
		Date:        r.Date,
		Granularity: r.Granularity,
		Fingerprint: r.Fingerprint,
		Markdown:    r.Markdown,
		JSON:        data,
	}, nil
}

// Categories 解析已存储报告的分类总结；JSON 无法解析时以 Markdown 作为单条内容
func (s *Stored) Categories() []Summary {
	var report Report
	if len(s.JSON) > 0 && json.Unmarshal(s.JSON, &report) == nil && len(report.Categories) > 0 {
		return report.Categories
	}
	if s.Markdown == "" {
		return nil
	}
	return []Summary{{
		Topic:   s.Date,
		Title:   s.Date,
		Content: []Item{RawItem(s.Markdown)},
	}}
}
