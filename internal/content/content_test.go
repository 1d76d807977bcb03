package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		typ      string
		want     Kind
		taxonomy string
	}{
		{"githubPullRequest", KindGithubPullRequest, TopicPullRequest},
		{"githubIssueContributor", KindGithubIssue, TopicIssue},
		{"githubCommit", KindGithubCommit, TopicCommit},
		{"githubStatsSummary", KindGithubSummary, TopicGithubSummary},
		{"discordRawData", KindDiscordMessage, ""},
		{"codexAnalytics", KindMarketAnalytics, ""},
		{" WebPage ", KindWebPage, ""},
		{"somethingElse", KindUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got := ParseKind(tt.typ)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.taxonomy, got.TaxonomyTopic())
		})
	}
}

func TestRecordKind_GithubSourceFallback(t *testing.T) {
	r := Record{Type: "weeklyDigest", Source: "GitHub-Stats"}
	assert.Equal(t, KindGithubSummary, r.Kind())
	assert.Equal(t, FamilyRepository, r.Kind().Family())

	r = Record{Type: "weeklyDigest", Source: "rss"}
	assert.Equal(t, KindUnknown, r.Kind())
}

func TestDomainTopic(t *testing.T) {
	assert.Equal(t, TopicMarket, KindMarketAnalytics.DomainTopic())
	assert.Empty(t, KindTweet.DomainTopic())
}

func TestCanonicalTopic(t *testing.T) {
	assert.Equal(t, "ai agents", CanonicalTopic("  AI   Agents "))
	assert.Equal(t, "ai agents", CanonicalTopic("ai agents"))
	assert.Empty(t, CanonicalTopic("   "))
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{"纯文本保持不变", Record{Type: "tweet", Text: "  hello world "}, "hello world"},
		{"网页剥离标签", Record{Type: "webPage", Text: "<html><body><h1>Title</h1><p>Body  text</p><script>x()</script></body></html>"}, "Title Body text"},
		{"普通记录中的 HTML", Record{Type: "discordRawData", Text: "line one<br/>line <b>two</b></p>"}, "line one line two"},
		{"空正文", Record{Type: "webPage"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.record))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 2))
	assert.Equal(t, "中文…", Truncate("中文内容", 2))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
}

func TestMetaStrings(t *testing.T) {
	r := Record{Metadata: map[string]any{
		"images": []any{"a.png", 3, "", "b.png"},
		"videos": []string{"v.mp4"},
		"author": "alice",
		"number": float64(1234),
	}}
	assert.Equal(t, []string{"a.png", "b.png"}, r.MetaStrings("images"))
	assert.Equal(t, []string{"v.mp4"}, r.MetaStrings("videos"))
	assert.Nil(t, r.MetaStrings("missing"))
	assert.Equal(t, "alice", r.MetaString("author"))
	assert.Empty(t, Record{}.MetaString("author"))
	assert.Equal(t, "1234", r.MetaString("number"), "JSON 解码出的数字按整数格式输出")
}
