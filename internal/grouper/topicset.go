package grouper

import (
	"sort"

	"github.com/fachebot/ai-news-digest/internal/content"
)

// TopicSet 规范化后的话题集合，写入和查询都经过 content.CanonicalTopic
type TopicSet map[string]struct{}

func NewTopicSet(topics ...string) TopicSet {
	s := make(TopicSet, len(topics))
	s.Add(topics...)
	return s
}

func (s TopicSet) Add(topics ...string) {
	for _, t := range topics {
		if t = content.CanonicalTopic(t); t != "" {
			s[t] = struct{}{}
		}
	}
}

func (s TopicSet) Contains(topic string) bool {
	_, ok := s[content.CanonicalTopic(topic)]
	return ok
}

// ContainsAll 空集合返回 false
func (s TopicSet) ContainsAll(other TopicSet) bool {
	if len(other) == 0 {
		return false
	}
	for t := range other {
		if _, ok := s[t]; !ok {
			return false
		}
	}
	return true
}

func (s TopicSet) Union(other TopicSet) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// Sorted 返回排序后的话题列表
func (s TopicSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
