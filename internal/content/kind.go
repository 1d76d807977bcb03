package content

import "strings"

// Kind 已知的内容子类型，未识别的类型统一归为 KindUnknown
type Kind int

const (
	KindUnknown Kind = iota
	KindDiscordMessage
	KindDiscordSummary
	KindGithubPullRequest
	KindGithubIssue
	KindGithubCommit
	KindGithubSummary
	KindMarketAnalytics
	KindTweet
	KindWebPage
)

// Family 内容来源族，决定分组规则的优先级
type Family int

const (
	FamilyUnknown Family = iota
	FamilyChat
	FamilyRepository
	FamilyMarket
	FamilySocial
	FamilyWeb
)

// 平台固定分类话题
const (
	TopicPullRequest   = "pull_request"
	TopicIssue         = "issue"
	TopicCommit        = "commit"
	TopicGithubSummary = "github_summary"
	TopicMarket        = "crypto market"
	TopicMisc          = "miscellaneous"
)

var kindByType = map[string]Kind{
	"discordrawdata":               KindDiscordMessage,
	"discordmessage":               KindDiscordMessage,
	"discordchannelsummary":        KindDiscordSummary,
	"githubpullrequest":            KindGithubPullRequest,
	"githubpullrequestcontributor": KindGithubPullRequest,
	"githubissue":                  KindGithubIssue,
	"githubissuecontributor":       KindGithubIssue,
	"githubcommit":                 KindGithubCommit,
	"githubcommitcontributor":      KindGithubCommit,
	"githubstatssummary":           KindGithubSummary,
	"githubtopcontributors":        KindGithubSummary,
	"githubcompleteditem":          KindGithubSummary,
	"codexanalytics":               KindMarketAnalytics,
	"coingeckoanalytics":           KindMarketAnalytics,
	"marketanalytics":              KindMarketAnalytics,
	"tokenanalytics":               KindMarketAnalytics,
	"tweet":                        KindTweet,
	"webpage":                      KindWebPage,
	"crawledpage":                  KindWebPage,
}

// ParseKind 将记录的 type 字段解析为已知子类型
func ParseKind(typ string) Kind {
	if k, ok := kindByType[strings.ToLower(strings.TrimSpace(typ))]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) Family() Family {
	switch k {
	case KindDiscordMessage, KindDiscordSummary:
		return FamilyChat
	case KindGithubPullRequest, KindGithubIssue, KindGithubCommit, KindGithubSummary:
		return FamilyRepository
	case KindMarketAnalytics:
		return FamilyMarket
	case KindTweet:
		return FamilySocial
	case KindWebPage:
		return FamilyWeb
	default:
		return FamilyUnknown
	}
}

// TaxonomyTopic 平台固定分类话题，非仓库类记录返回空串
func (k Kind) TaxonomyTopic() string {
	switch k {
	case KindGithubPullRequest:
		return TopicPullRequest
	case KindGithubIssue:
		return TopicIssue
	case KindGithubCommit:
		return TopicCommit
	case KindGithubSummary:
		return TopicGithubSummary
	default:
		return ""
	}
}

// DomainTopic 领域规则下的共享话题，非领域类记录返回空串
func (k Kind) DomainTopic() string {
	if k.Family() == FamilyMarket {
		return TopicMarket
	}
	return ""
}

func (k Kind) String() string {
	switch k {
	case KindDiscordMessage:
		return "discord_message"
	case KindDiscordSummary:
		return "discord_summary"
	case KindGithubPullRequest:
		return "github_pull_request"
	case KindGithubIssue:
		return "github_issue"
	case KindGithubCommit:
		return "github_commit"
	case KindGithubSummary:
		return "github_summary"
	case KindMarketAnalytics:
		return "market_analytics"
	case KindTweet:
		return "tweet"
	case KindWebPage:
		return "web_page"
	default:
		return "unknown"
	}
}

// IsTaxonomyTopic 判断话题是否属于平台固定分类
func IsTaxonomyTopic(topic string) bool {
	switch topic {
	case TopicPullRequest, TopicIssue, TopicCommit, TopicGithubSummary:
		return true
	}
	return false
}
