package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/storage"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// 导出文件头中的抓取类型
const (
	CrawlTypeSingle = "single"
	CrawlTypeBatch  = "batch"
)

// RunOptions 一次运行的参数
type RunOptions struct {
	OutputPath string
	CrawlType  string      // 为空时按目标数决定
	ShouldStop func() bool // 协作式取消,在目标和文章边界检查
	// OnProgress 报告 (已完成目标数+当前目标完成比例, 目标总数)
	OnProgress func(current, total float64)
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	CheckpointID string
	OutputPath   string
	TotalTargets int
	Completed    int
	Failed       int
	Incomplete   int
	NewRecords   int
	TotalRecords int
	Cancelled    bool
	Resumed      bool
	Duration     time.Duration
}

// batchState 一次运行中在目标循环和保存回调之间共享的计数
// 只在运行所在的goroutine中修改
type batchState struct {
	cp         *models.JobCheckpoint
	outputPath string
	resumed    bool
	targets    []string
	done       int
	newRecords int
	written    int
	// unwritten 已标记为抓取但还没写入导出文件的URL, 持久化时从检查点中去掉
	unwritten map[string]struct{}
}

// snapshot 返回可以持久化的检查点: 只包含导出文件中已有的抓取记录
func (s *batchState) snapshot() *models.JobCheckpoint {
	if len(s.unwritten) == 0 {
		return s.cp
	}
	snap := s.cp.Clone()
	for i, tp := range snap.TargetProgress {
		snap.TargetProgress[i] = tp.WithoutFetched(s.unwritten)
	}
	snap.Recount()
	if snap.Status == models.JobCompleted {
		snap.Status = models.JobPaused
	}
	return snap
}

// BatchCoordinator 按顺序抓取目标,负责检查点和导出文件的写入
type BatchCoordinator struct {
	runner     crawlers.TargetRunner
	store      storage.CheckpointStore
	writer     *storage.ResultWriter
	reporter   *utils.Reporter
	config     models.CrawlConfig
	maxRecords int
	now        func() time.Time
}

// NewBatchCoordinator 创建批量协调器
func NewBatchCoordinator(runner crawlers.TargetRunner, store storage.CheckpointStore, writer *storage.ResultWriter, config models.CrawlConfig) *BatchCoordinator {
	config.Normalize()
	return &BatchCoordinator{
		runner:     runner,
		store:      store,
		writer:     writer,
		config:     config,
		maxRecords: config.MaxPosts,
		now:        time.Now,
	}
}

// SetReporter 运行结束后生成报告, nil表示不生成
func (bc *BatchCoordinator) SetReporter(r *utils.Reporter) {
	bc.reporter = r
}

// Run 创建新检查点并抓取所有目标
func (bc *BatchCoordinator) Run(ctx context.Context, targetIDs []string, opts RunOptions) (*BatchSummary, error) {
	targets, err := models.ValidateTargets(targetIDs)
	if err != nil {
		return nil, err
	}
	if opts.OutputPath == "" {
		return nil, models.NewCrawlError(models.KindValidation, "", nil, "输出路径不能为空")
	}

	crawlType := opts.CrawlType
	if crawlType == "" {
		crawlType = CrawlTypeBatch
		if len(targets) == 1 {
			crawlType = CrawlTypeSingle
		}
	}

	cp := models.NewJobCheckpoint(targets, crawlType)
	cp.RunID = models.GenerateID()
	cp.OutputPath = opts.OutputPath
	if _, err := bc.store.Create(cp); err != nil {
		return nil, fmt.Errorf("创建检查点失败: %w", err)
	}

	utils.Infof("🚀 开始批量爬取: %d 个目标, 检查点 %s", len(targets), cp.CheckpointID)
	return bc.run(ctx, &batchState{cp: cp, outputPath: opts.OutputPath, targets: targets}, opts)
}

// Resume 从检查点继续
// 完成状态按 已抓取>=已发现>0 重新计算,不信任文件里的completed标记
func (bc *BatchCoordinator) Resume(ctx context.Context, checkpointID string, opts RunOptions) (*BatchSummary, error) {
	cp, err := bc.store.Load(checkpointID)
	if err != nil {
		if models.KindOf(err) == models.KindCheckpointCorrupt {
			return nil, err
		}
		return nil, models.NewCrawlError(models.KindCheckpointCorrupt, checkpointID, err, "无法加载检查点")
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = cp.OutputPath
	}
	if outputPath == "" {
		return nil, models.NewCrawlError(models.KindValidation, cp.CheckpointID, nil, "检查点未记录输出路径,请指定 --output")
	}

	remaining := cp.RemainingTargets()
	summary := &BatchSummary{
		CheckpointID: cp.CheckpointID,
		OutputPath:   outputPath,
		TotalTargets: len(cp.TargetIDs),
		Completed:    cp.ProcessedTargets,
		Resumed:      true,
	}
	if len(remaining) == 0 {
		utils.Infof("✅ 检查点 %s 的所有目标均已完成,无需恢复", cp.CheckpointID)
		return summary, nil
	}

	utils.Infof("♻️  恢复检查点 %s: 剩余 %d/%d 个目标", cp.CheckpointID, len(remaining), len(cp.TargetIDs))
	cp.OutputPath = outputPath
	cp.Status = models.JobRunning
	return bc.run(ctx, &batchState{cp: cp, outputPath: outputPath, resumed: true, targets: remaining}, opts)
}

func (bc *BatchCoordinator) run(ctx context.Context, state *batchState, opts RunOptions) (*BatchSummary, error) {
	start := bc.now()
	stop := func() bool {
		return ctx.Err() != nil || (opts.ShouldStop != nil && opts.ShouldStop())
	}
	report := func(fraction float64) {
		if opts.OnProgress != nil {
			opts.OnProgress(float64(state.done)+fraction, float64(len(state.targets)))
		}
	}

	cancelled := false
	for i, targetID := range state.targets {
		if stop() {
			cancelled = true
			break
		}

		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(state.targets), targetID)
		report(0)

		prior := state.cp.Progress(targetID)
		res, err := bc.runner.Crawl(ctx, crawlers.TargetRequest{
			TargetID:   targetID,
			MaxRecords: bc.maxRecords,
			Resume:     prior,
			Save: func(records []models.Post, tp *models.TargetProgress) error {
				return bc.save(state, records, tp, false)
			},
			Progress:   report,
			ShouldStop: opts.ShouldStop,
		})

		tp := res.Progress
		if tp == nil {
			tp = prior
		}
		if tp == nil {
			tp = models.NewTargetProgress(targetID)
		}

		interrupted := res.Cancelled || (err != nil && ctx.Err() != nil)
		if err != nil && !interrupted {
			tp.Status = models.TargetFailed
			tp.Error = err.Error()
			utils.Errorf("❌ 目标 %s 失败: %v", targetID, err)
		}

		// 失败或取消时也要把已抓取的文章写出
		if err := bc.save(state, res.Unsaved, tp, interrupted); err != nil {
			utils.Errorf("目标 %s 的进度保存失败: %v", targetID, err)
		}

		if interrupted {
			cancelled = true
			break
		}
		state.done++
		report(0)
	}

	switch {
	case cancelled:
		state.cp.Status = models.JobPaused
		utils.Warnf("⏸️  任务已暂停,可使用 resume %s 继续", state.cp.CheckpointID)
	case len(state.unwritten) > 0:
		state.cp.Status = models.JobPaused
		utils.Warnf("⏸️  %d 篇文章未能写入导出文件,可使用 resume %s 重新抓取", len(state.unwritten), state.cp.CheckpointID)
	default:
		state.cp.Status = models.JobCompleted
	}

	if err := bc.finish(state, cancelled); err != nil {
		return nil, err
	}

	end := bc.now()
	final := state.snapshot()
	summary := bc.summarize(state, final, cancelled, end.Sub(start))
	bc.printSummary(summary)

	if bc.reporter != nil {
		runReport := models.NewRunReport(final, start, end)
		runReport.Resumed = state.resumed
		runReport.NewRecords = summary.NewRecords
		runReport.TotalRecords = summary.TotalRecords
		runReport.OutputPath = state.outputPath
		runReport.Config = bc.config
		if _, err := bc.reporter.GenerateReport(runReport); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}
	return summary, nil
}

// save 先写导出文件再更新检查点,检查点中的已抓取URL不会多于导出文件
// 写入失败的文章记入unwritten, 之后的检查点都不包含它们
func (bc *BatchCoordinator) save(state *batchState, records []models.Post, tp *models.TargetProgress, interrupted bool) error {
	if tp != nil {
		state.cp.Upsert(tp)
	}
	if len(records) > 0 {
		info := models.HeaderFromCheckpoint(state.cp, interrupted, state.resumed)
		stats, err := bc.writer.Write(state.outputPath, records, info, true)
		if err != nil {
			if state.unwritten == nil {
				state.unwritten = make(map[string]struct{})
			}
			for _, r := range records {
				state.unwritten[r.SourceURL] = struct{}{}
			}
			return err
		}
		for _, r := range records {
			delete(state.unwritten, r.SourceURL)
		}
		state.written = stats.Total
		state.newRecords += stats.Added
		utils.Infof("💾 已保存 %d 篇文章 (导出文件共 %d 篇)", stats.Added, stats.Total)
	}
	return bc.persist(state, records)
}

// persist 保存检查点快照, 并把存储层分配的字段同步回内存状态
func (bc *BatchCoordinator) persist(state *batchState, records []models.Post) error {
	snap := state.snapshot()
	if err := bc.store.Update(state.cp.CheckpointID, snap, records); err != nil {
		return err
	}
	if snap != state.cp {
		state.cp.CheckpointID = snap.CheckpointID
		state.cp.LastUpdated = snap.LastUpdated
		state.cp.RecentRecords = snap.RecentRecords
	}
	return nil
}

// finish 先刷新导出文件头,再写入最终状态
// 文件头写入失败时检查点仍会保存, 其中只包含已写入的抓取记录
func (bc *BatchCoordinator) finish(state *batchState, cancelled bool) error {
	info := models.HeaderFromCheckpoint(state.cp, cancelled, state.resumed)
	stats, writeErr := bc.writer.Write(state.outputPath, nil, info, true)
	if writeErr == nil {
		state.written = stats.Total
	}
	if err := bc.persist(state, nil); err != nil {
		return fmt.Errorf("保存检查点失败: %w", err)
	}
	if writeErr != nil {
		return fmt.Errorf("写入导出文件失败: %w", writeErr)
	}
	return nil
}

func (bc *BatchCoordinator) summarize(state *batchState, final *models.JobCheckpoint, cancelled bool, elapsed time.Duration) *BatchSummary {
	summary := &BatchSummary{
		CheckpointID: final.CheckpointID,
		OutputPath:   state.outputPath,
		TotalTargets: len(final.TargetIDs),
		Completed:    final.ProcessedTargets,
		Failed:       final.FailedTargets,
		NewRecords:   state.newRecords,
		TotalRecords: state.written,
		Cancelled:    cancelled,
		Resumed:      state.resumed,
		Duration:     elapsed,
	}
	summary.Incomplete = summary.TotalTargets - summary.Completed - summary.Failed
	return summary
}

// printSummary 打印批量爬取摘要
func (bc *BatchCoordinator) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量爬取摘要")
	utils.Info("==================================================")
	utils.Infof("检查点: %s", summary.CheckpointID)
	utils.Infof("目标数: %d", summary.TotalTargets)
	utils.Infof("✅ 完成: %d", summary.Completed)
	utils.Infof("❌ 失败: %d", summary.Failed)
	utils.Infof("⏳ 未完成: %d", summary.Incomplete)
	utils.Infof("📝 新增文章: %d (共 %d)", summary.NewRecords, summary.TotalRecords)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.Duration.Seconds())
	utils.Infof("📁 输出文件: %s", summary.OutputPath)
	utils.Info("==================================================")
}
