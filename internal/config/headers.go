package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultHeaderFile 默认头部配置文件
	DefaultHeaderFile = "configs/headers.yaml"

	// MaxHeaderFileSize 头部配置文件大小上限
	MaxHeaderFileSize = 1 * 1024 * 1024
)

//go:embed headers_template.yaml
var headerTemplate string

// HeaderConfigLoader 读取 headers.yaml
type HeaderConfigLoader struct {
	path string
}

// NewHeaderConfigLoader 创建加载器, path为空时使用默认路径
func NewHeaderConfigLoader(path string) *HeaderConfigLoader {
	if path == "" {
		path = DefaultHeaderFile
	}
	return &HeaderConfigLoader{path: path}
}

// Path 配置文件路径
func (l *HeaderConfigLoader) Path() string {
	return l.path
}

// EnsureExists 文件不存在时写入模板
func (l *HeaderConfigLoader) EnsureExists() error {
	if _, err := os.Stat(l.path); !os.IsNotExist(err) {
		return nil
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}
	if err := os.WriteFile(l.path, []byte(headerTemplate), 0644); err != nil {
		return fmt.Errorf("无法生成头部配置 [%s]: %w", l.path, err)
	}
	utils.Infof("已生成头部配置模板: %s", l.path)
	return nil
}

// Load 读取并解析头部配置
// 文件被其他进程锁定时返回空配置
func (l *HeaderConfigLoader) Load() (*models.HeaderConfig, error) {
	if err := l.EnsureExists(); err != nil {
		return nil, err
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("无法读取头部配置 [%s]: %w", l.path, err)
	}
	if info.Size() > MaxHeaderFileSize {
		return nil, &models.ConfigError{
			FilePath: l.path,
			Cause:    fmt.Errorf("文件过大: %d 字节 (上限 %d)", info.Size(), MaxHeaderFileSize),
		}
	}

	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("头部配置被锁定 [%s], 使用默认头部", l.path)
			return &models.HeaderConfig{Headers: map[string]string{}}, nil
		}
		return nil, &models.ConfigError{FilePath: l.path, Cause: err}
	}

	var cfg models.HeaderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{FilePath: l.path, Cause: fmt.Errorf("解析headers失败: %w", err)}
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return &cfg, nil
}
