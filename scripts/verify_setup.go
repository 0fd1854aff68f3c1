package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/RecoveryAshes/blogcrawl/internal/core"
	"github.com/RecoveryAshes/blogcrawl/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  blogcrawl 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	if !strings.HasPrefix(goVersion, "go1.23") && !strings.HasPrefix(goVersion, "go1.24") && !strings.HasPrefix(goVersion, "go1.25") {
		fmt.Println("⚠️  警告: 建议使用Go 1.23+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器
	if path, found := launcher.LookPath(); found {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium - 首次运行时会自动下载")
	}

	// 检查配置
	fmt.Println()
	fmt.Println("检查配置...")
	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 配置加载失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ 爬取配置: %s\n", cfg.Crawl)

	headerManager, err := core.NewHeaderManager("", nil)
	if err == nil {
		_, err = headerManager.GetHeaders()
	}
	if err != nil {
		fmt.Printf("❌ HTTP头部配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ HTTP头部: %d个\n", len(headerManager.GetSafeHeaders()))
	}

	// 检查检查点存储
	store, err := core.OpenCheckpointStore(cfg.Output)
	if err != nil {
		fmt.Printf("❌ 检查点存储不可用: %v\n", err)
		allOK = false
	} else {
		ids, err := store.List()
		if err != nil {
			fmt.Printf("❌ 读取检查点失败: %v\n", err)
			allOK = false
		} else {
			fmt.Printf("✅ 检查点存储(%s): %d 个检查点\n", cfg.Output.CheckpointBackend, len(ids))
		}
		store.Close()
	}

	// 检查主机资源
	monitor := crawlers.NewResourceMonitor(cfg.ResourceMonitorConfig())
	if ok, reason := monitor.Check(); ok {
		fmt.Println("✅ 主机资源充足")
	} else {
		fmt.Printf("⚠️  %s - 爬取时会等待资源恢复\n", reason)
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/blogcrawl",
		"internal/core",
		"internal/crawlers",
		"internal/storage",
		"internal/models",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 编辑 configs/config.yaml")
		fmt.Println("  2. 运行 'blogcrawl crawl -t <博客ID>'")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}
