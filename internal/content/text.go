package content

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CanonicalTopic 话题规范化：去首尾空白、小写、折叠内部空白
func CanonicalTopic(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), " ")
}

// PlainText 返回记录正文的纯文本；网页类或包含 HTML 标签的正文会先剥离标签
func PlainText(r Record) string {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return ""
	}
	if r.Kind() == KindWebPage || looksLikeHTML(text) {
		if stripped, ok := stripHTML(text); ok {
			text = stripped
		}
	}
	return text
}

func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "</") || strings.Contains(lower, "<br") || strings.Contains(lower, "<p>")
}

func stripHTML(raw string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", false
	}
	doc.Find("script, style, noscript").Remove()

	// 逐个收集文本节点，块级元素之间保留分隔
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), true
}

// Truncate 按字符数截断文本，超出部分以省略号结尾
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + "…"
}
