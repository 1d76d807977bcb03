package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/llm"
)

// 单条记录写入 prompt 的最大字符数
const maxRecordChars = 1500

var temperature = float32(0.3)

const topicSystemPrompt = `You are an editor writing a daily news digest for an open-source and crypto community.
Summarize the records you are given into a JSON object with exactly this shape:
{"title": string, "content": [{"text": string, "sources": [string], "images": [string], "videos": [string]}]}
Each content entry is one distinct development written in one or two factual sentences.
"sources" lists the links of the records the entry is based on. Copy media links verbatim into "images" or "videos".
Do not invent facts, links or numbers. Reply with JSON only.`

const mergeSystemPrompt = `You merge partial JSON summaries of the same topic into one JSON summary.
Keep every distinct development, fold duplicates together and keep their sources.
Reply with one JSON object of the shape {"title": string, "content": [{"text": string, "sources": [string], "images": [string], "videos": [string]}]}.`

const composeSystemPrompt = `You turn structured JSON summaries into a well organised markdown report.
Use one "##" section per topic, bullet points for developments, and keep every source link as a markdown reference.
Keep image and video links. Do not add commentary or information that is not in the input.`

func topicOptions() llm.Options {
	return llm.Options{SystemPrompt: topicSystemPrompt, Temperature: &temperature, JSONMode: true}
}

func mergeOptions() llm.Options {
	return llm.Options{SystemPrompt: mergeSystemPrompt, Temperature: &temperature, JSONMode: true}
}

func composeOptions() llm.Options {
	return llm.Options{SystemPrompt: composeSystemPrompt, Temperature: &temperature}
}

// kindInstruction 各类记录的额外写作要求
func kindInstruction(kind content.Kind) string {
	switch kind {
	case content.KindDiscordMessage:
		return "These are chat messages. Focus on decisions, announcements, shipped work and open questions; skip greetings and small talk."
	case content.KindDiscordSummary:
		return "These are per-channel chat summaries. Combine overlapping points across channels."
	case content.KindGithubPullRequest:
		return "These are pull requests. Describe what each change does and whether it was merged."
	case content.KindGithubIssue:
		return "These are issues. Describe the reported problem or request and its current state."
	case content.KindGithubCommit:
		return "These are commits. Group related commits into one development."
	case content.KindGithubSummary:
		return "These are repository statistics and contributor summaries. Report the notable numbers."
	case content.KindMarketAnalytics:
		return "These are market data points. Report prices and changes precisely, without predictions."
	case content.KindTweet:
		return "These are social posts. Report the claims and announcements, attributing them to their authors."
	case content.KindWebPage:
		return "These are articles. Report the main point of each article."
	default:
		return "Report the notable developments."
	}
}

// renderRecord 按记录子类型渲染为一行或几行文本
func renderRecord(r content.Record) string {
	text := content.Truncate(content.PlainText(r), maxRecordChars)
	author := r.MetaString("author")
	if author == "" {
		author = r.MetaString("user")
	}

	var line string
	switch r.Kind() {
	case content.KindDiscordMessage:
		line = fmt.Sprintf("[%s] %s", orDefault(author, "unknown"), text)
	case content.KindDiscordSummary:
		line = fmt.Sprintf("Channel %s: %s", orDefault(r.MetaString("channelName"), r.Title), text)
	case content.KindGithubPullRequest, content.KindGithubIssue:
		number := r.MetaString("number")
		state := r.MetaString("state")
		line = strings.TrimSpace(fmt.Sprintf("#%s %s (%s, by %s): %s", number, r.Title, orDefault(state, "open"), orDefault(author, "unknown"), text))
	case content.KindGithubCommit:
		line = fmt.Sprintf("commit by %s: %s", orDefault(author, "unknown"), firstNonEmpty(r.Title, text))
	case content.KindGithubSummary, content.KindMarketAnalytics, content.KindWebPage:
		line = joinNonEmpty(": ", r.Title, text)
	case content.KindTweet:
		line = fmt.Sprintf("@%s: %s", orDefault(author, "unknown"), text)
	default:
		line = joinNonEmpty(": ", r.Title, text)
	}

	var sb strings.Builder
	sb.WriteString("- ")
	sb.WriteString(line)
	if r.Link != "" {
		sb.WriteString(" (source: ")
		sb.WriteString(r.Link)
		sb.WriteString(")")
	}
	for _, img := range r.MetaStrings("images") {
		sb.WriteString("\n  image: ")
		sb.WriteString(artifact.NormalizeMediaURL(img))
	}
	for _, vid := range r.MetaStrings("videos") {
		sb.WriteString("\n  video: ")
		sb.WriteString(artifact.NormalizeMediaURL(vid))
	}
	return sb.String()
}

// buildTopicPrompt 单个话题（或话题的一个分块）的 prompt
func buildTopicPrompt(topic string, members []content.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	if len(members) > 0 {
		sb.WriteString(kindInstruction(members[0].Kind()))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nRecords (%d):\n", len(members))
	for _, m := range members {
		sb.WriteString(renderRecord(m))
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildMergePrompt 合并同一话题各分块总结的 prompt
func buildMergePrompt(topic string, partials []artifact.Summary) string {
	data, _ := json.Marshal(partials)
	return fmt.Sprintf("Topic: %s\n\nPartial summaries (%d):\n%s\n", topic, len(partials), data)
}

// buildComposePrompt 将若干结构化总结合成 markdown 的 prompt
func buildComposePrompt(label string, summaries []artifact.Summary) string {
	data, _ := json.Marshal(summaries)
	return fmt.Sprintf("Report title: %s\n\nStart the report with \"# %s\".\n\nSummaries (%d):\n%s\n", label, label, len(summaries), data)
}

// buildPartPrompt 报告合成中间层分块的 prompt
func buildPartPrompt(label string, part int, summaries []artifact.Summary) string {
	data, _ := json.Marshal(summaries)
	return fmt.Sprintf("This is part %d of the report \"%s\". Write markdown sections for these summaries without a top-level title.\n\nSummaries (%d):\n%s\n", part, label, len(summaries), data)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
