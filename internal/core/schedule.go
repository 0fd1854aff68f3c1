package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/robfig/cron/v3"
)

// JobFunc 定时执行的任务
type JobFunc func(ctx context.Context) error

// Scheduler 按cron表达式周期性执行抓取
// 上一次执行未结束时跳过本次触发
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     JobFunc
	ctx     context.Context
	running atomic.Bool
	skipped atomic.Int64
}

// NewScheduler 解析cron表达式(5段或 @hourly 等描述符)并注册任务
func NewScheduler(ctx context.Context, spec string, job JobFunc) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		spec: spec,
		job:  job,
		ctx:  ctx,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("无效的cron表达式 %q: %w", spec, err)
	}
	return s, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	utils.Infof("⏰ 定时任务已启动: %s", s.spec)
	for _, entry := range s.cron.Entries() {
		utils.Infof("下次执行: %s", entry.Next.Format("2006-01-02 15:04:05"))
	}
}

// Stop 停止调度,返回的context在正在执行的任务结束后完成
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	utils.Info("定时任务已停止")
	return ctx
}

// Skipped 因上一次未结束而跳过的次数
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		utils.Warn("上一次定时抓取仍在运行,跳过本次")
		return
	}
	defer s.running.Store(false)

	if err := s.ctx.Err(); err != nil {
		return
	}
	utils.Info("⏰ 开始定时抓取")
	if err := s.job(s.ctx); err != nil {
		utils.Errorf("定时抓取失败: %v", err)
		return
	}
	utils.Info("定时抓取完成")
}
