package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/logger"
)

// Publisher 将生成的报告写入输出目录：<dir>/<type>/<date>.md 与 .json
type Publisher struct {
	dir string
}

func NewPublisher(dir string) *Publisher {
	return &Publisher{dir: dir}
}

// Enabled 未配置输出目录时不写文件
func (p *Publisher) Enabled() bool {
	return p != nil && p.dir != ""
}

// Publish 写入报告，返回 markdown 文件路径
func (p *Publisher) Publish(report *artifact.Report) (string, error) {
	if !p.Enabled() || report == nil {
		return "", nil
	}

	name := fileName(report.Date)
	if name == "" {
		return "", fmt.Errorf("报告缺少日期")
	}
	dir := filepath.Join(p.dir, fileName(report.Type))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化报告失败: %w", err)
	}

	mdPath := filepath.Join(dir, name+".md")
	if err := writeFile(mdPath, []byte(report.Markdown)); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(dir, name+".json"), data); err != nil {
		return "", err
	}

	logger.Infof("[Publish] 已写入报告 %s", mdPath)
	return mdPath, nil
}

// writeFile 先写临时文件再重命名，读者不会看到半个文件
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return nil
}

func fileName(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
}
