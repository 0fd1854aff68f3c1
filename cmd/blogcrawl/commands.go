package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/core"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/spf13/cobra"
)

// 爬取参数
var (
	targetIDs    []string
	targetFile   string
	outputPath   string
	delay        float64
	timeout      int
	maxPosts     int
	saveInterval int
	headless     bool
	sortByDate   bool
	probeMode    string
	rssFallback  bool

	cronSpec string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "爬取一个或多个博客",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateCrawlFlags(targetIDs, targetFile, delay, timeout, maxPosts, saveInterval, probeMode); err != nil {
			return err
		}
		targets, err := collectTargets()
		if err != nil {
			return err
		}
		applyCrawlFlags(cmd, &appConfig.Crawl)

		output := outputPath
		if output == "" {
			output = core.DefaultOutputPath(appConfig.Output.Dir, targets, time.Now())
		}
		return runService(core.StartRequest{Targets: targets, OutputPath: output})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <checkpoint_id|path>",
	Short: "从检查点继续爬取",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateCheckpointRef(args[0]); err != nil {
			return err
		}
		applyCrawlFlags(cmd, &appConfig.Crawl)
		return runService(core.StartRequest{CheckpointID: args[0], OutputPath: outputPath})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按cron表达式定时爬取",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := cronSpec
		if spec == "" {
			spec = appConfig.Schedule.Cron
		}
		if err := ValidateCron(spec); err != nil {
			return err
		}

		if len(targetIDs) == 0 && targetFile == "" {
			targetIDs = appConfig.Schedule.Targets
		}
		if err := ValidateCrawlFlags(targetIDs, targetFile, delay, timeout, maxPosts, saveInterval, probeMode); err != nil {
			return err
		}
		targets, err := collectTargets()
		if err != nil {
			return err
		}
		applyCrawlFlags(cmd, &appConfig.Crawl)
		return runSchedule(spec, targets)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "配置相关命令",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "显示当前生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := appConfig.ToYAML()
		if err != nil {
			return err
		}
		fmt.Print(out)

		headerManager, err := core.NewHeaderManager(headerFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := headerManager.LoadConfig(); err != nil {
			return fmt.Errorf("加载头部配置失败: %w", err)
		}
		printSafeHeaders(headerManager.GetSafeHeaders())
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "验证配置文件和HTTP头部",
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.Info("🔍 验证配置...")
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}
		headerManager, err := core.NewHeaderManager(headerFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("头部验证失败: %w", err)
		}
		utils.Info("✅ 配置验证通过!")
		printSafeHeaders(headerManager.GetSafeHeaders())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{crawlCmd, scheduleCmd} {
		c.Flags().StringSliceVarP(&targetIDs, "target", "t", nil, "博客ID,可多次指定或用逗号分隔")
		c.Flags().StringVarP(&targetFile, "file", "f", "", "包含博客ID列表的文件路径")
	}
	for _, c := range []*cobra.Command{crawlCmd, resumeCmd, scheduleCmd} {
		c.Flags().Float64Var(&delay, "delay", 0, "请求间隔(秒), 最小0.5")
		c.Flags().IntVar(&timeout, "timeout", 0, "页面超时(秒)")
		c.Flags().IntVar(&maxPosts, "max-posts", 0, "每个博客最多抓取篇数, 0表示不限")
		c.Flags().IntVar(&saveInterval, "save-interval", 0, "每N篇保存一次")
		c.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
		c.Flags().BoolVar(&sortByDate, "sort-by-date", true, "导出时按发布日期倒序")
		c.Flags().StringVar(&probeMode, "probe", "", "存在性探测方式 (browser|static)")
		c.Flags().BoolVar(&rssFallback, "rss", false, "文章列表为空时尝试RSS")
	}
	crawlCmd.Flags().StringVarP(&outputPath, "output", "o", "", "输出文件路径 (默认 output/<ID>_<时间>.json)")
	resumeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "输出文件路径 (默认使用检查点中记录的路径)")
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "", "cron表达式, 例如 \"0 3 * * *\" 或 @daily")

	configCmd.AddCommand(configShowCmd, configValidateCmd)
}

// collectTargets 合并 -t 和 -f 指定的目标
func collectTargets() ([]string, error) {
	targets := append([]string{}, targetIDs...)
	if targetFile != "" {
		fromFile, err := utils.ReadTargetsFromFile(targetFile)
		if err != nil {
			return nil, fmt.Errorf("读取目标文件失败: %w", err)
		}
		targets = append(targets, fromFile...)
	}
	return models.ValidateTargets(targets)
}

// applyCrawlFlags 只覆盖命令行显式指定的参数
func applyCrawlFlags(cmd *cobra.Command, crawl *models.CrawlConfig) {
	flags := cmd.Flags()
	if flags.Changed("delay") {
		crawl.Delay = delay
	}
	if flags.Changed("timeout") {
		crawl.Timeout = timeout
	}
	if flags.Changed("max-posts") {
		crawl.MaxPosts = maxPosts
	}
	if flags.Changed("save-interval") {
		crawl.SaveInterval = saveInterval
	}
	if flags.Changed("headless") {
		crawl.Headless = headless
	}
	if flags.Changed("sort-by-date") {
		crawl.SortByDate = sortByDate
	}
	if flags.Changed("probe") {
		crawl.ProbeMode = models.ProbeMode(probeMode)
	}
	if flags.Changed("rss") {
		crawl.RSSFallback = rssFallback
	}
	crawl.Normalize()
}

// loadHeaders 加载、验证并合并HTTP头部
func loadHeaders() (http.Header, error) {
	headerManager, err := core.NewHeaderManager(headerFile, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	merged, err := headerManager.GetHeaders()
	if err != nil {
		return nil, fmt.Errorf("HTTP头部配置无效: %w", err)
	}
	utils.Debugf("HTTP头部: %v", headerManager.GetSafeHeaders())
	return merged, nil
}

// runService 在后台运行任务,前台显示进度并处理中断信号
func runService(req core.StartRequest) error {
	hdrs, err := loadHeaders()
	if err != nil {
		return err
	}
	rt, err := core.NewRuntime(appConfig, hdrs)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer rt.Close()

	bar := utils.NewProgressBar(os.Stderr, "爬取进度")
	svc := core.NewService(rt.Coordinator, core.Observer{
		OnProgress: utils.ProgressUpdater(bar),
		OnComplete: func(path string) {
			_ = bar.Finish()
			utils.Infof("✨ 爬取任务完成! 输出文件: %s", path)
		},
	})

	stopSignals := watchSignals(svc.Cancel, svc.Cancelled)
	defer stopSignals()

	if err := svc.Start(context.Background(), req); err != nil {
		return err
	}
	summary, err := svc.Wait()
	if err != nil {
		return err
	}
	if summary != nil && summary.Cancelled {
		utils.Warnf("任务已中断,使用 blogcrawl resume %s 继续", summary.CheckpointID)
	}
	return nil
}

// runSchedule 定时执行新的批量任务,每次使用新的输出文件
func runSchedule(spec string, targets []string) error {
	hdrs, err := loadHeaders()
	if err != nil {
		return err
	}
	rt, err := core.NewRuntime(appConfig, hdrs)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := core.NewScheduler(ctx, spec, func(ctx context.Context) error {
		output := core.DefaultOutputPath(appConfig.Output.Dir, targets, time.Now())
		_, err := rt.Coordinator.Run(ctx, targets, core.RunOptions{OutputPath: output})
		return err
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	<-ctx.Done()
	utils.Warn("收到中断信号,等待当前任务保存进度...")
	<-scheduler.Stop().Done()
	if n := scheduler.Skipped(); n > 0 {
		utils.Infof("因上一次未结束跳过 %d 次执行", n)
	}
	return nil
}

// watchSignals 第一次中断请求协作式停止,第二次立即退出
func watchSignals(cancel func(), cancelled func() bool) func() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigChan:
				if cancelled() {
					utils.Warnf("再次收到中断信号: %v, 立即退出", sig)
					os.Exit(130)
				}
				utils.Warnf("\n收到中断信号: %v, 当前文章完成后停止 (再次中断立即退出)", sig)
				cancel()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

func printSafeHeaders(safe map[string]string) {
	names := make([]string, 0, len(safe))
	for name := range safe {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nHTTP头部 (%d个):\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s: %s\n", name, safe[name])
	}
}
