package engine

import "fmt"

// ConfigurationError 缺少必需的组件，在任何模型调用之前返回
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("配置错误: 缺少%s", e.Missing)
}
