package grouper

import (
	"fmt"
	"testing"

	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, typ string, topics ...string) content.Record {
	return content.Record{ID: id, Type: typ, Source: "test", Text: "text " + id, Topics: topics}
}

func topicsOf(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Topic
	}
	return out
}

func idsOf(g Group) []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.ID
	}
	return out
}

func find(groups []Group, topic string) (Group, bool) {
	for _, g := range groups {
		if g.Topic == topic {
			return g, true
		}
	}
	return Group{}, false
}

func TestGroup_Empty(t *testing.T) {
	groups := New(nil).Group(nil)
	require.Len(t, groups, 1)
	assert.Equal(t, content.TopicMisc, groups[0].Topic)
	assert.Empty(t, groups[0].Members)
}

func TestGroup_OrderAndMiscLast(t *testing.T) {
	records := []content.Record{
		rec("1", "discordRawData", "AI"),
		rec("2", "discordRawData", "defi"),
		rec("3", "discordRawData", "defi"),
		rec("4", "discordRawData", "ai"),
		rec("5", "discordRawData", "defi"),
		rec("6", "discordRawData", "lonely"),
	}
	groups := New(nil).Group(records)

	assert.Equal(t, []string{"defi", "ai", content.TopicMisc}, topicsOf(groups))
	assert.Equal(t, []string{"2", "3", "5"}, idsOf(groups[0]))
	assert.Equal(t, []string{"1", "4"}, idsOf(groups[1]))
	assert.Equal(t, []string{"6"}, idsOf(groups[2]))
}

func TestGroup_TaxonomyExemptFromFold(t *testing.T) {
	records := []content.Record{
		rec("pr", "githubPullRequest"),
		rec("is", "githubIssue", "bug"),
		rec("m1", "discordRawData", "chat"),
		rec("m2", "discordRawData", "chat"),
	}
	groups := New(nil).Group(records)

	pr, ok := find(groups, content.TopicPullRequest)
	require.True(t, ok, "单条记录的平台分类也要独立成组")
	assert.True(t, pr.Taxonomy)
	assert.Equal(t, []string{"pr"}, idsOf(pr))

	issue, ok := find(groups, content.TopicIssue)
	require.True(t, ok)
	assert.Equal(t, []string{"is"}, idsOf(issue), "平台分类优先于记录自带的话题")

	_, ok = find(groups, "bug")
	assert.False(t, ok)
	assert.Empty(t, groups[len(groups)-1].Members)
}

func TestGroup_DomainRule(t *testing.T) {
	records := []content.Record{
		rec("c1", "codexAnalytics", "solana"),
		rec("c2", "coingeckoAnalytics"),
		rec("c3", "marketAnalytics", "eth"),
	}
	groups := New(nil).Group(records)
	assert.Equal(t, []string{content.TopicMarket, content.TopicMisc}, topicsOf(groups))
	assert.Len(t, groups[0].Members, 3)

	// 领域规则的单条分组与通用话题一样并入 miscellaneous
	single := New(nil).Group([]content.Record{
		rec("m1", "marketAnalytics"),
		rec("n1", "tweet", "news"),
		rec("n2", "tweet", "news"),
	})
	assert.Equal(t, []string{"news", content.TopicMisc}, topicsOf(single))
	assert.Equal(t, []string{"m1"}, idsOf(single[1]))
}

func TestGroup_BlockedTopicsAndTypeFallback(t *testing.T) {
	records := []content.Record{
		rec("1", "tweet", "Spam", "news"),
		rec("2", "tweet", "spam"),
		rec("3", "tweet", "news"),
	}
	groups := New([]string{"SPAM"}).Group(records)

	// 记录 2 只剩类型名 tweet，单条成员并入 miscellaneous
	assert.Equal(t, []string{"news", content.TopicMisc}, topicsOf(groups))
	assert.Equal(t, []string{"1", "3"}, idsOf(groups[0]))
	assert.Equal(t, []string{"2"}, idsOf(groups[1]))

	// 所有话题都被屏蔽时回退到类型名
	fallback := New([]string{"spam"}).Group([]content.Record{rec("a", "tweet", "spam"), rec("b", "Tweet")})
	tweet, ok := find(fallback, "tweet")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, idsOf(tweet))
}

func TestGroup_MultiTopicMembership(t *testing.T) {
	records := []content.Record{
		rec("1", "discordRawData", "ai", "agents"),
		rec("2", "discordRawData", "ai"),
		rec("3", "discordRawData", "agents", "robots"),
		rec("4", "discordRawData", "ai"),
	}
	groups := New(nil).Group(records)

	ai, ok := find(groups, "ai")
	require.True(t, ok)
	agents, ok := find(groups, "agents")
	require.True(t, ok, "别名集合未被完全占用时保留独立分组")
	assert.Equal(t, []string{"1", "2", "4"}, idsOf(ai))
	assert.Equal(t, []string{"1", "3"}, idsOf(agents))
	assert.Equal(t, []string{"agents", "ai", "robots"}, agents.Aliases.Sorted())
}

func TestGroup_CoDeclaredTopicFolds(t *testing.T) {
	records := []content.Record{
		rec("1", "discordRawData", "ai", "agents"),
		rec("2", "discordRawData", "ai"),
		rec("3", "discordRawData", "agents"),
		rec("4", "discordRawData", "ai"),
	}
	groups := New(nil).Group(records)

	// agents 的别名集合 {ai, agents} 已被更大的 ai 分组占用
	assert.Equal(t, []string{"ai", content.TopicMisc}, topicsOf(groups))
	assert.Equal(t, []string{"3"}, idsOf(groups[1]))
}

func TestGroup_AliasAlreadyClaimedFoldsIntoMisc(t *testing.T) {
	records := []content.Record{
		rec("1", "discordRawData", "ai", "ml"),
		rec("2", "discordRawData", "AI", "ML"),
		rec("3", "discordRawData", "ai"),
	}
	groups := New(nil).Group(records)

	// ml 的别名集合 {ai, ml} 已经被 ai 分组占用
	assert.Equal(t, []string{"ai", content.TopicMisc}, topicsOf(groups))
	assert.Empty(t, groups[1].Members, "已被代表的成员不会重复进入 miscellaneous")
}

func TestGroup_DoesNotMutateInput(t *testing.T) {
	records := []content.Record{
		rec("1", "discordRawData", "AI", "Agents"),
		rec("2", "githubIssue"),
		rec("3", "tweet"),
	}
	snapshot := fmt.Sprintf("%#v", records)

	New([]string{"agents"}).Group(records)
	assert.Equal(t, snapshot, fmt.Sprintf("%#v", records))
	assert.Nil(t, records[1].Topics)
}

func TestGroup_EveryRecordRepresented(t *testing.T) {
	var records []content.Record
	for i := 0; i < 40; i++ {
		topic := fmt.Sprintf("topic-%d", i%7)
		if i%11 == 0 {
			topic = fmt.Sprintf("unique-%d", i)
		}
		records = append(records, rec(fmt.Sprintf("r%d", i), "discordRawData", topic))
	}
	groups := New(nil).Group(records)

	seen := make(map[string]bool)
	for _, g := range groups {
		for _, m := range g.Members {
			seen[m.ID] = true
		}
	}
	assert.Len(t, seen, len(records))
	for i := 1; i < len(groups)-1; i++ {
		assert.GreaterOrEqual(t, len(groups[i-1].Members), len(groups[i].Members))
	}
}

func TestTopicSet(t *testing.T) {
	s := NewTopicSet("  Machine   Learning ", "AI")
	assert.True(t, s.Contains("machine learning"))
	assert.True(t, s.Contains("ai"))
	assert.False(t, s.ContainsAll(NewTopicSet()))
	assert.True(t, s.ContainsAll(NewTopicSet("ai")))
	assert.Equal(t, []string{"ai", "machine learning"}, s.Sorted())
}
