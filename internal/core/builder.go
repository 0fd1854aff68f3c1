package core

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/storage"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// Runtime 一次运行使用的全部组件
type Runtime struct {
	Config      *Config
	Factory     *crawlers.RodSessionFactory
	Store       storage.CheckpointStore
	Writer      *storage.ResultWriter
	Coordinator *BatchCoordinator
}

// NewRuntime 按配置组装浏览器、探测、链接收集、文章提取和存储
func NewRuntime(cfg *Config, headers http.Header) (*Runtime, error) {
	crawl := cfg.Crawl
	crawl.Normalize()
	timeout := crawl.TimeoutDuration()

	monitor := crawlers.NewResourceMonitor(cfg.ResourceMonitorConfig())
	factory := crawlers.NewRodSessionFactory(crawl.Headless, headers, crawl.NavigateRate, monitor)

	var prober crawlers.Prober = crawlers.SessionProber{Timeout: timeout}
	if crawl.ProbeMode == models.ProbeStatic {
		prober = crawlers.StaticProber{Headers: headers, Timeout: timeout}
	}

	var rss *crawlers.RSSLinkSource
	if crawl.RSSFallback {
		rss = crawlers.NewRSSLinkSource("")
	}
	linkOpts := crawlers.DefaultLinkCollectorOptions()
	linkOpts.NavTimeout = timeout
	links := crawlers.NewLinkCollector(linkOpts, rss)

	postOpts := crawlers.DefaultPostExtractorOptions()
	postOpts.NavTimeout = timeout
	posts := crawlers.NewPostExtractor(postOpts)

	target := crawlers.NewTargetCrawler(factory, prober, links, posts, crawl)

	store, err := OpenCheckpointStore(cfg.Output)
	if err != nil {
		return nil, err
	}
	writer := storage.NewResultWriter(crawl.SortByDate)

	coordinator := NewBatchCoordinator(target, store, writer, crawl)
	coordinator.SetReporter(utils.NewReporter(ReportsDir(cfg.Output)))

	utils.Debugf("爬取配置: %s", crawl)
	return &Runtime{
		Config:      cfg,
		Factory:     factory,
		Store:       store,
		Writer:      writer,
		Coordinator: coordinator,
	}, nil
}

// Close 关闭浏览器和检查点存储
func (r *Runtime) Close() error {
	var firstErr error
	if r.Factory != nil {
		if err := r.Factory.Close(); err != nil {
			firstErr = err
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenCheckpointStore 按配置打开检查点存储
func OpenCheckpointStore(out OutputConfig) (storage.CheckpointStore, error) {
	dir := out.CheckpointDir
	if dir == "" {
		dir = storage.DefaultCheckpointDir
	}
	switch out.CheckpointBackend {
	case BackendSQLite:
		return storage.NewSQLiteCheckpointStore(filepath.Join(dir, storage.DefaultSQLiteFile))
	case "", BackendJSON:
		return storage.NewFileCheckpointStore(dir)
	default:
		return nil, fmt.Errorf("未知的检查点后端: %s", out.CheckpointBackend)
	}
}

// ReportsDir 运行报告目录
func ReportsDir(out OutputConfig) string {
	dir := out.Dir
	if dir == "" {
		dir = "output"
	}
	return filepath.Join(dir, "reports")
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DefaultOutputPath 生成默认输出路径: <dir>/<目标ID或batch>_<时间>.json
func DefaultOutputPath(dir string, targets []string, now time.Time) string {
	if dir == "" {
		dir = "output"
	}
	prefix := CrawlTypeBatch
	if len(targets) == 1 {
		if safe := unsafeFileChars.ReplaceAllString(targets[0], "_"); safe != "" {
			prefix = safe
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", prefix, now.Format(storage.CheckpointIDLayout)))
}
