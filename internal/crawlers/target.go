package crawlers

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// SaveFunc 保存回调,records为自上次保存以来新抓取的文章
type SaveFunc func(records []models.Post, progress *models.TargetProgress) error

// TargetRequest 单个目标的抓取请求
type TargetRequest struct {
	TargetID   string
	MaxRecords int                    // 0表示不限
	Resume     *models.TargetProgress // 之前的进度, nil表示全新抓取
	Save       SaveFunc
	Progress   func(fraction float64) // 当前目标的完成比例
	ShouldStop func() bool            // 取消检查,在每篇文章前调用
}

// TargetResult 单个目标的抓取结果
type TargetResult struct {
	Progress  *models.TargetProgress
	Unsaved   []models.Post // 还没交给Save的文章
	Cancelled bool
	Fetched   int // 本次成功数
	Failed    int // 本次失败数
}

// TargetRunner 执行单个目标的抓取
type TargetRunner interface {
	Crawl(ctx context.Context, req TargetRequest) (TargetResult, error)
}

// LinkSource 收集目标的文章链接, LinkCollector 实现
type LinkSource interface {
	Collect(ctx context.Context, s PageSession, targetID string, maxLinks int) (LinkResult, error)
}

// RecordExtractor 提取单篇文章, PostExtractor 实现
type RecordExtractor interface {
	Extract(ctx context.Context, s PageSession, pageURL, knownTarget string) (*models.Post, error)
}

// TargetCrawler 组合链接收集与文章提取完成一个目标
type TargetCrawler struct {
	factory      SessionFactory
	prober       Prober
	links        LinkSource
	posts        RecordExtractor
	delay        time.Duration
	saveInterval int
	sleep        SleepFunc
}

// NewTargetCrawler 创建目标爬取器
func NewTargetCrawler(factory SessionFactory, prober Prober, links LinkSource, posts RecordExtractor, config models.CrawlConfig) *TargetCrawler {
	config.Normalize()
	return &TargetCrawler{
		factory:      factory,
		prober:       prober,
		links:        links,
		posts:        posts,
		delay:        config.DelayDuration(),
		saveInterval: config.SaveInterval,
		sleep:        utils.Sleep,
	}
}

// Crawl 抓取一个目标
//
// 全新模式: 探测目标存在 -> 收集链接 -> 逐篇提取
// 恢复模式: 已有发现列表时跳过探测和链接收集,只抓取未完成的URL
func (tc *TargetCrawler) Crawl(ctx context.Context, req TargetRequest) (TargetResult, error) {
	targetID, err := models.ValidateTargetID(req.TargetID)
	if err != nil {
		return TargetResult{}, err
	}

	progress := req.Resume
	if progress == nil {
		progress = models.NewTargetProgress(targetID)
	}
	resume := len(progress.DiscoveredURLs) > 0
	progress.Status = models.TargetInProgress
	progress.Error = ""
	result := TargetResult{Progress: progress}

	var session PageSession
	defer func() {
		if session != nil {
			if err := session.Close(); err != nil {
				utils.Debugf("[%s] 关闭页面失败: %v", targetID, err)
			}
		}
	}()

	if !resume {
		if session, err = tc.factory.Open(ctx, targetID); err != nil {
			return result, err
		}
		if tc.prober != nil {
			if err := tc.prober.Probe(ctx, session, targetID); err != nil {
				return result, err
			}
		}
		links, err := tc.links.Collect(ctx, session, targetID, req.MaxRecords)
		if err != nil {
			return result, err
		}
		progress.DiscoveredURLs = links.URLs
		if len(links.URLs) == 0 {
			utils.Warnf("[%s] 没有发现任何文章链接", targetID)
			progress.RefreshStatus()
			return result, nil
		}
	} else {
		utils.Infof("[%s] 恢复抓取: 已发现 %d 篇, 已抓取 %d 篇", targetID, len(progress.DiscoveredURLs), len(progress.FetchedURLs))
	}

	remaining := progress.Remaining()
	if len(remaining) == 0 {
		progress.RefreshStatus()
		return result, nil
	}

	if session == nil {
		if session, err = tc.factory.Open(ctx, targetID); err != nil {
			return result, err
		}
	}

	batch := make([]models.Post, 0, tc.saveInterval)
	for i, pageURL := range remaining {
		if (req.ShouldStop != nil && req.ShouldStop()) || ctx.Err() != nil {
			utils.Infof("[%s] 收到停止请求,已处理 %d/%d", targetID, i, len(remaining))
			result.Cancelled = true
			break
		}

		post, err := tc.posts.Extract(ctx, session, pageURL, targetID)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				result.Unsaved = batch
				return result, models.NewCrawlError(models.KindNetwork, targetID, err, "页面会话已关闭")
			}
			if ctx.Err() != nil {
				result.Cancelled = true
				break
			}
			progress.MarkFailed(pageURL)
			result.Failed++
			utils.Warnf("[%s] 跳过文章 %s: %v", targetID, pageURL, err)
			tc.report(req, i+1, len(remaining))
			continue
		}

		progress.MarkFetched(pageURL)
		batch = append(batch, *post)
		result.Fetched++
		tc.report(req, i+1, len(remaining))

		if len(batch) >= tc.saveInterval && req.Save != nil {
			if err := req.Save(batch, progress); err != nil {
				utils.Errorf("[%s] 保存失败,保留 %d 篇待下次保存: %v", targetID, len(batch), err)
			} else {
				batch = make([]models.Post, 0, tc.saveInterval)
			}
		}

		if i < len(remaining)-1 {
			if err := tc.sleep(ctx, tc.delay); err != nil {
				result.Cancelled = true
				break
			}
		}
	}

	progress.RefreshStatus()
	result.Unsaved = batch
	utils.Infof("[%s] 本次成功 %d 篇, 失败 %d 篇, 累计 %d/%d", targetID, result.Fetched, result.Failed, len(progress.FetchedURLs), len(progress.DiscoveredURLs))
	return result, nil
}

func (tc *TargetCrawler) report(req TargetRequest, done, total int) {
	if req.Progress != nil && total > 0 {
		req.Progress(float64(done) / float64(total))
	}
}
