package fingerprint

import (
	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/content"
)

// Decision 幂等检查的结果
type Decision struct {
	Skip        bool
	Fingerprint string
}

// ShouldSkip 非强制且已存储报告的指纹与当前指纹一致时跳过重新生成
func ShouldSkip(fingerprint string, stored *artifact.Stored, force bool) bool {
	if force || stored == nil || stored.Fingerprint == "" {
		return false
	}
	return stored.Fingerprint == fingerprint
}

// Check 计算内容记录的指纹并判断是否可以跳过
func Check(records []content.Record, stored *artifact.Stored, force bool) Decision {
	fp := Records(records)
	return Decision{
		Skip:        ShouldSkip(fp, stored, force),
		Fingerprint: fp,
	}
}
