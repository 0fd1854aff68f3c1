package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning 已有任务在运行
var ErrAlreadyRunning = errors.New("已有爬取任务在运行")

// Observer 界面层订阅的事件, 回调在service的goroutine中调用
type Observer struct {
	OnLog      func(line string)
	OnProgress func(current, total float64)
	OnComplete func(outputPath string)
	OnError    func(message string)
}

// StartRequest 启动参数, CheckpointID非空时从检查点恢复
type StartRequest struct {
	Targets      []string
	CheckpointID string
	OutputPath   string
	CrawlType    string
}

// Service 在后台goroutine中运行批量任务
// 与调用方之间只有取消标志、进度和日志三类通信
type Service struct {
	coordinator *BatchCoordinator
	observer    Observer
	logLevel    zerolog.Level

	mu      sync.Mutex
	running bool
	done    chan struct{}
	summary *BatchSummary
	err     error

	stop atomic.Bool
}

// NewService 创建服务
func NewService(coordinator *BatchCoordinator, observer Observer) *Service {
	return &Service{
		coordinator: coordinator,
		observer:    observer,
		logLevel:    zerolog.InfoLevel,
	}
}

// Start 启动任务,立即返回
func (s *Service) Start(ctx context.Context, req StartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop.Store(false)
	s.summary, s.err = nil, nil
	s.done = make(chan struct{})

	go s.run(ctx, req, s.done)
	return nil
}

// Cancel 请求停止,当前文章处理完后生效
func (s *Service) Cancel() {
	if s.stop.CompareAndSwap(false, true) {
		utils.Warn("收到停止请求,正在保存进度...")
	}
}

// Cancelled 是否已请求停止
func (s *Service) Cancelled() bool {
	return s.stop.Load()
}

// Running 是否有任务在运行
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait 等待任务结束
func (s *Service) Wait() (*BatchSummary, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil, nil
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.err
}

func (s *Service) run(ctx context.Context, req StartRequest, done chan struct{}) {
	detach := s.attachLog()

	opts := RunOptions{
		OutputPath: req.OutputPath,
		CrawlType:  req.CrawlType,
		ShouldStop: s.stop.Load,
		OnProgress: s.observer.OnProgress,
	}

	var summary *BatchSummary
	var err error
	if req.CheckpointID != "" {
		summary, err = s.coordinator.Resume(ctx, req.CheckpointID, opts)
	} else {
		summary, err = s.coordinator.Run(ctx, req.Targets, opts)
	}

	detach()

	if err != nil {
		utils.Errorf("任务失败: %v", err)
		if s.observer.OnError != nil {
			s.observer.OnError(err.Error())
		}
	} else if s.observer.OnComplete != nil {
		s.observer.OnComplete(summary.OutputPath)
	}

	s.mu.Lock()
	s.summary, s.err = summary, err
	s.running = false
	s.mu.Unlock()
	close(done)
}

// attachLog 把日志转发给OnLog, 返回的函数卸载并排空剩余日志
func (s *Service) attachLog() func() {
	if s.observer.OnLog == nil {
		return func() {}
	}

	sink := utils.NewLogSink(256, s.logLevel)
	utils.AttachLogSink(sink)

	quit := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case ev := <-sink.Events():
				s.observer.OnLog(ev.Line())
			case <-quit:
				for {
					select {
					case ev := <-sink.Events():
						s.observer.OnLog(ev.Line())
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		utils.DetachLogSink(sink)
		close(quit)
		<-drained
		if n := sink.Dropped(); n > 0 {
			utils.Debugf("日志通道已满,丢弃 %d 条", n)
		}
	}
}
