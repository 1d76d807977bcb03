package artifact

import (
	"fmt"
	"strings"
)

// RenderMarkdown 不经过模型，直接把总结列表渲染为 Markdown
func RenderMarkdown(title string, summaries []Summary) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(fmt.Sprintf("# %s\n", title))
	}
	for _, s := range summaries {
		heading := s.Title
		if heading == "" {
			heading = s.Topic
		}
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", heading))
		for _, item := range s.Content {
			text := strings.TrimSpace(item.Text)
			if text == "" {
				continue
			}
			sb.WriteString("- ")
			sb.WriteString(strings.ReplaceAll(text, "\n", "\n  "))
			for i, src := range item.Sources {
				sb.WriteString(fmt.Sprintf(" [[%d]](%s)", i+1, src))
			}
			sb.WriteString("\n")
			for _, img := range item.Images {
				sb.WriteString(fmt.Sprintf("  ![image](%s)\n", img))
			}
			for _, v := range item.Videos {
				sb.WriteString(fmt.Sprintf("  [video](%s)\n", v))
			}
		}
	}
	return sb.String()
}
