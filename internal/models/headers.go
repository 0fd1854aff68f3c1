package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig headers.yaml 的结构
type HeaderConfig struct {
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders 命令行 -H 传入的头部, 每项形如 "Name: Value"
type CliHeaders []string

// Parse 转为 http.Header, 同名头部后出现的覆盖先出现的
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, &ValidationError{
				Field:      "name",
				HeaderName: raw,
				Reason:     fmt.Sprintf("第%d项缺少冒号", i+1),
				Suggestion: "使用 'Name: Value' 格式",
			}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &ValidationError{Field: "name", HeaderName: raw, Reason: fmt.Sprintf("第%d项头部名称为空", i+1)}
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// HeaderProvider 提供浏览器会话和静态探测使用的HTTP头部
// 返回值已按 默认 < 配置文件 < 命令行 合并
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// ValidationError 头部验证错误
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += " (建议: " + e.Suggestion + ")"
	}
	return msg
}

// ConfigError 配置文件解析错误
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
