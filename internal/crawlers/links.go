package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// LinkCollectorOptions 列表页滚动参数
type LinkCollectorOptions struct {
	NavTimeout     time.Duration // 列表页导航超时
	InitialWait    time.Duration // 列表页打开后的等待
	ScrollWait     time.Duration // 每次滚动后等待新内容加载
	StableRounds   int           // 高度连续不变多少轮视为稳定
	UnchangedPause time.Duration // 高度未变化时的额外停顿
	Cooldown       time.Duration // 判定稳定前的冷却复查
	MaxScrolls     int           // 滚动次数上限
	SettleWait     time.Duration // 稳定后提取链接前的等待
	PanelWait      time.Duration // 打开排序面板后的等待
}

// DefaultLinkCollectorOptions 默认参数
func DefaultLinkCollectorOptions() LinkCollectorOptions {
	return LinkCollectorOptions{
		NavTimeout:     30 * time.Second,
		InitialWait:    2 * time.Second,
		ScrollWait:     1500 * time.Millisecond,
		StableRounds:   3,
		UnchangedPause: 300 * time.Millisecond,
		Cooldown:       2 * time.Second,
		MaxScrolls:     200,
		SettleWait:     2 * time.Second,
		PanelWait:      time.Second,
	}
}

// LinkResult 链接收集结果
type LinkResult struct {
	URLs          []string // 规范化并去重后的文章URL,保持发现顺序
	DeclaredTotal int      // 列表页显示的文章总数, -1 表示未读取到
	Mismatch      bool     // 总数与收集数不一致
	Strategy      string   // 生效的提取策略
	Scrolls       int      // 实际滚动次数
}

// LinkCollector 滚动列表页直到稳定,然后提取全部文章链接
type LinkCollector struct {
	opts       LinkCollectorOptions
	strategies []LinkStrategy
	rss        *RSSLinkSource
	sleep      SleepFunc
}

// NewLinkCollector 创建链接收集器, rss 为nil时不使用RSS补充
func NewLinkCollector(opts LinkCollectorOptions, rss *RSSLinkSource) *LinkCollector {
	if opts.StableRounds <= 0 {
		opts.StableRounds = 3
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = 200
	}
	return &LinkCollector{
		opts:       opts,
		strategies: defaultLinkStrategies(),
		rss:        rss,
		sleep:      utils.Sleep,
	}
}

// Collect 收集目标的全部文章链接
// 列表页无法访问时返回Network错误;页面可访问但没有链接时返回空结果
func (lc *LinkCollector) Collect(ctx context.Context, s PageSession, targetID string, maxLinks int) (LinkResult, error) {
	result := LinkResult{DeclaredTotal: -1}
	listingURL := ListingURL(targetID)

	if err := s.Navigate(ctx, listingURL, WaitDOMContentLoaded, lc.opts.NavTimeout); err != nil {
		return result, models.NewCrawlError(models.KindNetwork, targetID, err, "无法访问文章列表")
	}
	if err := lc.sleep(ctx, lc.opts.InitialWait); err != nil {
		return result, err
	}

	result.DeclaredTotal = lc.readDeclaredTotal(ctx, s, targetID)
	if result.DeclaredTotal >= 0 {
		utils.Infof("[%s] 列表显示共 %d 篇文章", targetID, result.DeclaredTotal)
	}

	scrolls, err := lc.scrollUntilStable(ctx, s, targetID)
	result.Scrolls = scrolls
	if err != nil {
		return result, err
	}

	if err := lc.sleep(ctx, lc.opts.SettleWait); err != nil {
		return result, err
	}

	urls, strategy, err := lc.extract(ctx, s, targetID)
	if err != nil {
		return result, err
	}
	result.URLs = urls
	result.Strategy = strategy

	if result.DeclaredTotal >= 0 && result.DeclaredTotal != len(urls) {
		result.Mismatch = true
		utils.Warnf("[%s] 收集到 %d 个链接,与列表显示的 %d 篇不一致", targetID, len(urls), result.DeclaredTotal)
	}

	if maxLinks > 0 && len(result.URLs) > maxLinks {
		result.URLs = result.URLs[:maxLinks]
	}

	utils.Infof("[%s] 链接收集完成: %d 个 (策略=%s, 滚动%d次)", targetID, len(result.URLs), strategy, scrolls)
	return result, nil
}

// readDeclaredTotal 打开排序面板读取文章总数,读不到返回-1
func (lc *LinkCollector) readDeclaredTotal(ctx context.Context, s PageSession, targetID string) int {
	for _, button := range totalCountButtons {
		if n, err := s.Count(ctx, button); err != nil || n == 0 {
			continue
		}
		if err := s.Click(ctx, button); err != nil {
			utils.Debugf("[%s] 打开排序面板失败: %v", targetID, err)
			continue
		}
		if err := lc.sleep(ctx, lc.opts.PanelWait); err != nil {
			return -1
		}

		total := -1
		if text, err := s.Text(ctx, totalCountSelector); err == nil {
			if n, ok := ParseCount(text); ok {
				total = n
			}
		}

		// 关闭面板,没有关闭按钮时重新打开列表页
		if n, err := s.Count(ctx, totalCountCloseInput); err == nil && n > 0 {
			if err := s.Click(ctx, totalCountCloseInput); err != nil {
				utils.Debugf("[%s] 关闭排序面板失败: %v", targetID, err)
			}
		} else if err := s.Navigate(ctx, ListingURL(targetID), WaitDOMContentLoaded, lc.opts.NavTimeout); err != nil {
			utils.Debugf("[%s] 重新打开列表页失败: %v", targetID, err)
		}
		return total
	}
	return -1
}

// scrollUntilStable 滚动到底部直到高度稳定、出现加载完毕标志或达到上限
func (lc *LinkCollector) scrollUntilStable(ctx context.Context, s PageSession, targetID string) (int, error) {
	lastHeight := lc.height(ctx, s)
	unchanged := 0
	scrolls := 0

	for {
		if scrolls >= lc.opts.MaxScrolls {
			utils.Warnf("[%s] 达到滚动上限 %d 次,停止滚动", targetID, lc.opts.MaxScrolls)
			return scrolls, nil
		}
		if n, err := s.Count(ctx, fullyLoadedSelector); err == nil && n > 0 {
			utils.Debugf("[%s] 检测到列表加载完毕标志", targetID)
			return scrolls, nil
		}

		if err := lc.scroll(ctx, s); err != nil {
			return scrolls, models.NewCrawlError(models.KindNetwork, targetID, err, "滚动列表失败")
		}
		scrolls++

		height := lc.height(ctx, s)
		if height != lastHeight {
			lastHeight = height
			unchanged = 0
			continue
		}

		unchanged++
		if unchanged < lc.opts.StableRounds {
			if err := lc.sleep(ctx, lc.opts.UnchangedPause); err != nil {
				return scrolls, err
			}
			continue
		}

		// 连续多轮未变化,冷却后复查一次
		if err := lc.sleep(ctx, lc.opts.Cooldown); err != nil {
			return scrolls, err
		}
		if err := lc.scroll(ctx, s); err != nil {
			return scrolls, models.NewCrawlError(models.KindNetwork, targetID, err, "滚动列表失败")
		}
		recheck := lc.height(ctx, s)
		if recheck == lastHeight {
			utils.Debugf("[%s] 列表高度稳定在 %.0f", targetID, lastHeight)
			return scrolls, nil
		}
		lastHeight = recheck
		unchanged = 0
	}
}

func (lc *LinkCollector) scroll(ctx context.Context, s PageSession) error {
	if err := s.ScrollToBottom(ctx); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		utils.Debugf("滚动失败: %v", err)
	}
	return lc.sleep(ctx, lc.opts.ScrollWait)
}

// height 读取页面高度,失败返回-1
func (lc *LinkCollector) height(ctx context.Context, s PageSession) float64 {
	raw, err := s.Evaluate(ctx, scrollHeightJS)
	if err != nil {
		return -1
	}
	var h float64
	if err := json.Unmarshal(raw, &h); err != nil {
		return -1
	}
	return h
}

// extract 依次尝试提取策略,第一个得到非空结果的生效
func (lc *LinkCollector) extract(ctx context.Context, s PageSession, targetID string) ([]string, string, error) {
	for _, st := range lc.strategies {
		links, err := st.Links(ctx, s)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil, "", models.NewCrawlError(models.KindNetwork, targetID, err, "提取链接时页面关闭")
			}
			utils.Debugf("[%s] 链接策略 %s 失败: %v", targetID, st.Name(), err)
			continue
		}
		if urls := CanonicalizeAll(links, targetID); len(urls) > 0 {
			return urls, st.Name(), nil
		}
		utils.Debugf("[%s] 链接策略 %s 没有结果", targetID, st.Name())
	}

	if lc.rss != nil {
		links, err := lc.rss.Links(ctx, targetID)
		if err != nil {
			utils.Warnf("[%s] RSS补充失败: %v", targetID, err)
		} else if urls := CanonicalizeAll(links, targetID); len(urls) > 0 {
			utils.Warnf("[%s] 列表页没有提取到链接,使用RSS中的 %d 篇(可能不完整)", targetID, len(urls))
			return urls, "rss", nil
		}
	}
	return nil, "", nil
}
