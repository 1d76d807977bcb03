package aggregator

import (
	"fmt"
	"time"

	"github.com/fachebot/ai-news-digest/internal/artifact"
)

// GranularityFor 按区间天数（含两端）判断粒度：<=7 周报，<=31 月报，其余自定义
func GranularityFor(start, end time.Time) artifact.Granularity {
	days := len(Days(start, end))
	switch {
	case days <= 7:
		return artifact.GranularityWeekly
	case days <= 31:
		return artifact.GranularityMonthly
	default:
		return artifact.GranularityCustom
	}
}

// ParseRange 解析日期区间，结束日期早于开始日期时报错
func ParseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("开始日期格式错误: %w", err)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("结束日期格式错误: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("结束日期 %s 早于开始日期 %s", endDate, startDate)
	}
	return start, end, nil
}

// RangeKey 区间报告的存储日期键
func RangeKey(start, end time.Time) string {
	return start.Format(DateLayout) + "_" + end.Format(DateLayout)
}
