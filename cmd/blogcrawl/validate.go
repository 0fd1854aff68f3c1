package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/robfig/cron/v3"
)

// ValidateCrawlFlags 验证爬取参数, 负数和越界值直接报错而不是钳制
func ValidateCrawlFlags(
	targets []string,
	targetFile string,
	delay float64,
	timeout int,
	maxPosts int,
	saveInterval int,
	probe string,
) error {
	// 验证目标来源
	if len(targets) == 0 && targetFile == "" {
		return fmt.Errorf("必须通过 --target 或 --file 指定至少一个目标")
	}
	for _, id := range targets {
		if _, err := models.ValidateTargetID(id); err != nil {
			return fmt.Errorf("无效的目标ID: %w", err)
		}
	}

	// 验证请求间隔
	if delay < 0 || delay > 60 {
		return fmt.Errorf("请求间隔必须在0-60秒之间,当前值: %.1f", delay)
	}

	// 验证超时, 0表示使用配置文件
	if timeout != 0 && (timeout < models.MinTimeoutSeconds || timeout > models.MaxTimeoutSeconds) {
		return fmt.Errorf("超时必须在%d-%d秒之间,当前值: %d", models.MinTimeoutSeconds, models.MaxTimeoutSeconds, timeout)
	}

	// 验证数量
	if maxPosts < 0 {
		return fmt.Errorf("最大文章数不能为负数,当前值: %d", maxPosts)
	}
	if saveInterval < 0 {
		return fmt.Errorf("保存间隔不能为负数,当前值: %d", saveInterval)
	}

	// 验证探测方式
	validProbes := map[string]bool{
		"":                          true,
		string(models.ProbeBrowser): true,
		string(models.ProbeStatic):  true,
	}
	if !validProbes[probe] {
		return fmt.Errorf("无效的探测方式: %s (有效值: browser, static)", probe)
	}

	return nil
}

// ValidateCheckpointRef 验证检查点ID或路径
func ValidateCheckpointRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("检查点ID不能为空")
	}
	return nil
}

// ValidateCron 验证cron表达式
func ValidateCron(spec string) error {
	if spec == "" {
		return fmt.Errorf("未指定cron表达式 (--cron 或配置 schedule.cron)")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("无效的cron表达式 %q: %w", spec, err)
	}
	return nil
}
