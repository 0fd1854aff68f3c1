package models

import (
	"fmt"
	"time"
)

// TargetStatus 单个目标的状态
type TargetStatus string

const (
	TargetPending    TargetStatus = "pending"     // 待执行
	TargetInProgress TargetStatus = "in_progress" // 执行中或未抓完
	TargetCompleted  TargetStatus = "completed"   // 已完成
	TargetFailed     TargetStatus = "failed"      // 失败
)

// JobStatus 批量任务状态
type JobStatus string

const (
	JobRunning   JobStatus = "running"   // 运行中
	JobPaused    JobStatus = "paused"    // 已暂停(被取消)
	JobCompleted JobStatus = "completed" // 已完成
)

// ProbeMode 目标存在性探测方式
type ProbeMode string

const (
	ProbeBrowser ProbeMode = "browser" // 在浏览器会话中检查错误页
	ProbeStatic  ProbeMode = "static"  // 通过静态HTTP请求检查
)

const (
	MinDelaySeconds     = 0.5 // 最小请求间隔
	MinTimeoutSeconds   = 10  // 最小超时
	MaxTimeoutSeconds   = 300 // 最大超时
	DefaultSaveInterval = 10  // 默认保存间隔(篇)
)

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Delay        float64   `json:"delay" mapstructure:"delay" yaml:"delay"`                         // 请求间隔(秒) (默认:1.0)
	Timeout      int       `json:"timeout" mapstructure:"timeout" yaml:"timeout"`                   // 页面超时(秒) (默认:30)
	SaveInterval int       `json:"save_interval" mapstructure:"save_interval" yaml:"save_interval"` // 每N篇保存一次 (默认:10)
	MaxPosts     int       `json:"max_posts" mapstructure:"max_posts" yaml:"max_posts"`             // 每个目标最多抓取篇数, 0表示不限
	Headless     bool      `json:"headless" mapstructure:"headless" yaml:"headless"`                // 无头模式 (默认:true)
	SortByDate   bool      `json:"sort_by_date" mapstructure:"sort_by_date" yaml:"sort_by_date"`    // 导出时按发布日期倒序
	ProbeMode    ProbeMode `json:"probe_mode" mapstructure:"probe_mode" yaml:"probe_mode"`          // 存在性探测方式
	RSSFallback  bool      `json:"rss_fallback" mapstructure:"rss_fallback" yaml:"rss_fallback"`    // 列表为空时尝试RSS
	NavigateRate float64   `json:"navigate_rate" mapstructure:"navigate_rate" yaml:"navigate_rate"` // 每秒最多导航次数, 0表示不限
}

// DefaultCrawlConfig 默认爬取配置
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Delay:        1.0,
		Timeout:      30,
		SaveInterval: DefaultSaveInterval,
		Headless:     true,
		SortByDate:   true,
		ProbeMode:    ProbeBrowser,
		NavigateRate: 1.0,
	}
}

// Normalize 将数值参数钳制到允许范围
func (c *CrawlConfig) Normalize() {
	if c.Delay < MinDelaySeconds {
		c.Delay = MinDelaySeconds
	}
	if c.Timeout < MinTimeoutSeconds {
		c.Timeout = MinTimeoutSeconds
	}
	if c.Timeout > MaxTimeoutSeconds {
		c.Timeout = MaxTimeoutSeconds
	}
	if c.SaveInterval < 1 {
		c.SaveInterval = DefaultSaveInterval
	}
	if c.MaxPosts < 0 {
		c.MaxPosts = 0
	}
	if c.ProbeMode == "" {
		c.ProbeMode = ProbeBrowser
	}
	if c.NavigateRate < 0 {
		c.NavigateRate = 0
	}
}

// Validate 验证无法钳制的参数
func (c *CrawlConfig) Validate() error {
	switch c.ProbeMode {
	case "", ProbeBrowser, ProbeStatic:
	default:
		return NewCrawlError(KindValidation, "", nil, "无效的探测方式: %s (有效值: browser, static)", c.ProbeMode)
	}
	return nil
}

// DelayDuration 请求间隔
func (c CrawlConfig) DelayDuration() time.Duration {
	return time.Duration(c.Delay * float64(time.Second))
}

// TimeoutDuration 页面超时
func (c CrawlConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// String 便于日志输出
func (c CrawlConfig) String() string {
	return fmt.Sprintf("delay=%.1fs timeout=%ds save_interval=%d max_posts=%d headless=%v probe=%s",
		c.Delay, c.Timeout, c.SaveInterval, c.MaxPosts, c.Headless, c.ProbeMode)
}
