package crawlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// RSSLinkSource 通过目标的RSS源获取文章链接
// RSS只包含最近的文章,仅作为列表页提取为空时的补充
type RSSLinkSource struct {
	// FeedURL 源地址模板, %s 替换为目标ID
	FeedURL string
	parser  *gofeed.Parser
}

// DefaultFeedURL 默认RSS地址模板
const DefaultFeedURL = "https://rss.blog.naver.com/%s.xml"

// NewRSSLinkSource 创建RSS链接源
func NewRSSLinkSource(feedURL string) *RSSLinkSource {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &RSSLinkSource{FeedURL: feedURL, parser: gofeed.NewParser()}
}

// Links 读取RSS并返回条目链接(未规范化)
func (r *RSSLinkSource) Links(ctx context.Context, targetID string) ([]string, error) {
	feedURL := r.FeedURL
	if strings.Contains(feedURL, "%s") {
		feedURL = fmt.Sprintf(feedURL, targetID)
	}
	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("解析RSS失败: %w", err)
	}

	links := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}
