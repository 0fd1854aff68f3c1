package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	MinAvailableMB   uint64        // 打开新页面所需的最小可用内存(MB), 0表示不检查
	CPULoadThreshold float64       // CPU使用率上限(%), >=100表示不检查
	MaxWait          time.Duration // 资源不足时最长等待时间
	PollInterval     time.Duration // 重新检查间隔
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		MinAvailableMB:   300,
		CPULoadThreshold: 95,
		MaxWait:          2 * time.Minute,
		PollInterval:     5 * time.Second,
	}
}

// ResourceSnapshot 一次采样结果
type ResourceSnapshot struct {
	AvailableMB uint64
	CPUPercent  float64
}

// ResourceMonitor 在打开新页面前检查主机资源
// 资源不足时等待,超过MaxWait后放行并记录警告
type ResourceMonitor struct {
	config ResourceMonitorConfig
	sample func() (ResourceSnapshot, error)
	sleep  SleepFunc
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &ResourceMonitor{
		config: config,
		sample: sampleHost,
		sleep:  utils.Sleep,
	}
}

// sampleHost 使用gopsutil读取系统可用内存和CPU使用率
func sampleHost() (ResourceSnapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSnapshot{}, fmt.Errorf("获取系统内存失败: %w", err)
	}
	snap := ResourceSnapshot{AvailableMB: vm.Available / (1024 * 1024)}

	// 100毫秒采样,perCPU=false 返回整体使用率
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err == nil && len(percentages) > 0 {
		snap.CPUPercent = percentages[0]
	}
	return snap, nil
}

// Check 判断当前资源是否允许打开新页面
func (rm *ResourceMonitor) Check() (ok bool, reason string) {
	snap, err := rm.sample()
	if err != nil {
		utils.Warnf("资源采样失败,跳过检查: %v", err)
		return true, ""
	}
	if rm.config.MinAvailableMB > 0 && snap.AvailableMB < rm.config.MinAvailableMB {
		return false, fmt.Sprintf("可用内存不足(当前%dMB, 需要%dMB)", snap.AvailableMB, rm.config.MinAvailableMB)
	}
	if rm.config.CPULoadThreshold > 0 && rm.config.CPULoadThreshold < 100 && snap.CPUPercent > rm.config.CPULoadThreshold {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", snap.CPUPercent)
	}
	return true, ""
}

// WaitForCapacity 等待资源恢复,超时后放行
func (rm *ResourceMonitor) WaitForCapacity(ctx context.Context) error {
	deadline := time.Now().Add(rm.config.MaxWait)
	for {
		ok, reason := rm.Check()
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			utils.Warnf("%s, 已等待%s, 继续执行", reason, rm.config.MaxWait)
			return nil
		}
		utils.Warnf("%s, %s后重试", reason, rm.config.PollInterval)
		if err := rm.sleep(ctx, rm.config.PollInterval); err != nil {
			return err
		}
	}
}
