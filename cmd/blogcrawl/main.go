package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/blogcrawl/internal/core"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	logLevel   string

	// HTTP头部参数
	headerFile string
	headers    []string // 自定义HTTP请求头

	// 加载后的配置, 在PersistentPreRunE中设置
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "blogcrawl",
	Short: "移动版博客批量爬取工具",
	Long: `blogcrawl - 移动版博客文章批量爬取工具

支持:
  • 按博客ID批量爬取全部文章
  • 正文、标签、评论数、发布时间提取
  • 断点续爬 (JSON 或 SQLite 检查点)
  • 增量导出与去重
  • 定时爬取
  • 自定义HTTP请求头

示例:
  # 爬取单个博客
  blogcrawl crawl -t myblog

  # 从文件批量爬取
  blogcrawl crawl -f targets.txt -o output/all.json

  # 从检查点恢复
  blogcrawl resume batch_20240101_120000

  # 每天凌晨3点爬取配置中的目标
  blogcrawl schedule --cron "0 3 * * *"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		logConfig := config.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置和日志
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("blogcrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringVar(&headerFile, "headers-file", "", "HTTP头部配置文件 (默认 configs/headers.yaml)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	// 添加子命令
	rootCmd.AddCommand(crawlCmd, resumeCmd, scheduleCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
