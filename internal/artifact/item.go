package artifact

import (
	"net/url"
	"strings"
)

// Discord CDN 签名参数会过期，同一文件的链接需要去掉它们才能比较
var discordCDNHosts = map[string]bool{
	"cdn.discordapp.com":   true,
	"media.discordapp.net": true,
}

var expiringParams = []string{"ex", "is", "hm"}

// RawItem 将无法解析的模型输出包装为一条内容
func RawItem(text string) Item {
	return Item{
		Text:    text,
		Sources: []string{},
		Images:  []string{},
		Videos:  []string{},
	}
}

// NormalizeMediaURL 规范化媒体链接，去掉 Discord CDN 的过期签名参数
func NormalizeMediaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || !discordCDNHosts[u.Host] {
		return raw
	}
	query := u.Query()
	for _, p := range expiringParams {
		query.Del(p)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// Normalize 补齐空数组，规范化并去重链接
func (it Item) Normalize() Item {
	return Item{
		Text:    strings.TrimSpace(it.Text),
		Sources: dedupe(it.Sources, strings.TrimSpace),
		Images:  dedupe(it.Images, NormalizeMediaURL),
		Videos:  dedupe(it.Videos, NormalizeMediaURL),
	}
}

func dedupe(values []string, norm func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
