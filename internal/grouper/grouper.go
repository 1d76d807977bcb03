package grouper

import (
	"sort"

	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/logger"
)

// Group 同一话题下的内容记录
type Group struct {
	Topic    string
	Members  []content.Record
	Aliases  TopicSet
	Taxonomy bool
}

// Grouper 将一段时间内的内容记录划分为话题分组
type Grouper struct {
	blocked TopicSet
}

// New 创建分组器，blocked 中的话题不会作为通用话题使用
func New(blocked []string) *Grouper {
	return &Grouper{blocked: NewTopicSet(blocked...)}
}

// index 第一遍扫描的结果，只记录下标，不修改输入
type index struct {
	order     []string
	members   map[string][]int
	taxonomy  map[string]bool
	keysOfRec [][]string
}

// Group 返回按成员数量降序排列的话题分组，最后一个固定为 miscellaneous
func (g *Grouper) Group(records []content.Record) []Group {
	idx := g.classify(records)

	topics := make([]string, 0, len(idx.order))
	for _, topic := range idx.order {
		if topic != content.TopicMisc {
			topics = append(topics, topic)
		}
	}
	// 稳定排序保证数量相同时按首次出现顺序
	sort.SliceStable(topics, func(i, j int) bool {
		return len(idx.members[topics[i]]) > len(idx.members[topics[j]])
	})

	var (
		groups  []Group
		claimed = NewTopicSet()
		covered = make(map[int]bool, len(records))
		misc    []int
		inMisc  = make(map[int]bool)
	)
	fold := func(members []int) {
		for _, m := range members {
			if covered[m] || inMisc[m] {
				continue
			}
			inMisc[m] = true
			misc = append(misc, m)
		}
	}

	for _, topic := range topics {
		members := idx.members[topic]
		aliases := NewTopicSet()
		for _, m := range members {
			aliases.Add(idx.keysOfRec[m]...)
		}

		if !idx.taxonomy[topic] && (len(members) <= 1 || claimed.ContainsAll(aliases)) {
			fold(members)
			continue
		}

		claimed.Union(aliases)
		for _, m := range members {
			covered[m] = true
		}
		groups = append(groups, Group{
			Topic:    topic,
			Members:  pick(records, members),
			Aliases:  aliases,
			Taxonomy: idx.taxonomy[topic],
		})
	}

	fold(idx.members[content.TopicMisc])
	sort.Ints(misc)
	groups = append(groups, Group{
		Topic:   content.TopicMisc,
		Members: pick(records, misc),
		Aliases: NewTopicSet(content.TopicMisc),
	})

	logger.Debugf("[Grouper] %d 条记录划分为 %d 个分组, 其中 miscellaneous %d 条", len(records), len(groups), len(misc))
	return groups
}

func (g *Grouper) classify(records []content.Record) *index {
	idx := &index{
		members:   make(map[string][]int),
		taxonomy:  make(map[string]bool),
		keysOfRec: make([][]string, len(records)),
	}
	for i, r := range records {
		keys, taxonomy := g.topicKeys(r)
		idx.keysOfRec[i] = keys
		for _, key := range keys {
			if _, ok := idx.members[key]; !ok {
				idx.order = append(idx.order, key)
			}
			idx.members[key] = append(idx.members[key], i)
			if taxonomy {
				idx.taxonomy[key] = true
			}
		}
	}
	return idx
}

// topicKeys 按 平台分类 > 领域规则 > 通用话题 的优先级给出记录的话题
func (g *Grouper) topicKeys(r content.Record) ([]string, bool) {
	kind := r.Kind()
	if topic := kind.TaxonomyTopic(); topic != "" {
		return []string{topic}, true
	}
	if topic := kind.DomainTopic(); topic != "" {
		return []string{topic}, false
	}

	seen := NewTopicSet()
	var keys []string
	for _, t := range r.Topics {
		topic := content.CanonicalTopic(t)
		if topic == "" || g.blocked.Contains(topic) || content.IsTaxonomyTopic(topic) || seen.Contains(topic) {
			continue
		}
		seen.Add(topic)
		keys = append(keys, topic)
	}
	if len(keys) > 0 {
		return keys, false
	}

	if topic := content.CanonicalTopic(r.Type); topic != "" {
		return []string{topic}, false
	}
	return []string{content.TopicMisc}, false
}

func pick(records []content.Record, indices []int) []content.Record {
	out := make([]content.Record, len(indices))
	for i, idx := range indices {
		out[i] = records[idx]
	}
	return out
}
