package content

import (
	"strconv"
	"strings"
	"time"
)

// Record 一条已采集的原始内容（消息、Issue、网页等），分组后只读
type Record struct {
	ID        string         `json:"cid"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Title     string         `json:"title,omitempty"`
	Text      string         `json:"text,omitempty"`
	Link      string         `json:"link,omitempty"`
	Topics    []string       `json:"topics,omitempty"`
	Timestamp int64          `json:"date"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Kind 返回记录类型对应的已知子类型
func (r Record) Kind() Kind {
	kind := ParseKind(r.Type)
	if kind == KindUnknown && strings.Contains(strings.ToLower(r.Source), "github") {
		return KindGithubSummary
	}
	return kind
}

// Time 返回记录的 UTC 时间
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// MetaString 读取字符串或数字类型的元数据
func (r Record) MetaString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	switch v := r.Metadata[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// MetaStrings 读取字符串数组类型的元数据，兼容 JSON 解码出的 []any
func (r Record) MetaStrings(key string) []string {
	if r.Metadata == nil {
		return nil
	}
	switch v := r.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
