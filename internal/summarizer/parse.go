package summarizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fachebot/ai-news-digest/internal/artifact"
)

// ErrMalformedOutput 模型输出无法解析为结构化总结
var ErrMalformedOutput = errors.New("模型输出格式错误")

// summaryJSON 兼容模型常见的几种输出字段名
type summaryJSON struct {
	Topic    string          `json:"topic"`
	Title    string          `json:"title"`
	Content  []artifact.Item `json:"content"`
	Items    []artifact.Item `json:"items"`
	Summary  string          `json:"summary"`
	Sections []summaryJSON   `json:"sections"`
}

// parseSummary 解析模型返回的 JSON，支持对象和内容数组两种形式
func parseSummary(raw, topic string) (artifact.Summary, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return artifact.Summary{}, fmt.Errorf("%w: 输出为空", ErrMalformedOutput)
	}

	var items []artifact.Item
	var title string
	switch raw[0] {
	case '{':
		var obj summaryJSON
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return artifact.Summary{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		title = obj.Title
		items = obj.flatten()
	case '[':
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return artifact.Summary{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	default:
		return artifact.Summary{}, fmt.Errorf("%w: 不是 JSON", ErrMalformedOutput)
	}

	content := make([]artifact.Item, 0, len(items))
	for _, it := range items {
		it = it.Normalize()
		if it.Text == "" {
			continue
		}
		content = append(content, it)
	}
	if len(content) == 0 {
		return artifact.Summary{}, fmt.Errorf("%w: 没有内容条目", ErrMalformedOutput)
	}
	if title == "" {
		title = topic
	}
	return artifact.Summary{Topic: topic, Title: title, Content: content}, nil
}

func (s summaryJSON) flatten() []artifact.Item {
	items := append([]artifact.Item{}, s.Content...)
	items = append(items, s.Items...)
	for _, section := range s.Sections {
		items = append(items, section.flatten()...)
	}
	if len(items) == 0 && s.Summary != "" {
		items = append(items, artifact.RawItem(s.Summary))
	}
	return items
}

// rawSummary 将无法解析的输出原样包装，保证该分块的内容不丢失
func rawSummary(raw, topic string) artifact.Summary {
	return artifact.Summary{
		Topic:   topic,
		Title:   topic,
		Content: []artifact.Item{artifact.RawItem(strings.TrimSpace(raw))},
	}
}

// parseOrWrap 解析失败时退回原文包装
func parseOrWrap(raw, topic string) (artifact.Summary, bool) {
	summary, err := parseSummary(raw, topic)
	if err != nil {
		return rawSummary(raw, topic), false
	}
	return summary, true
}
