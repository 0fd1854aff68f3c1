package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/content"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// PostExtractorOptions 文章提取参数
type PostExtractorOptions struct {
	MaxAttempts      int           // 每个URL的最大尝试次数
	RetryBackoff     time.Duration // 失败后的固定等待
	NavTimeout       time.Duration // 导航超时
	PostLoadWait     time.Duration // 导航后的等待
	BodyWaitTimeout  time.Duration // 等待正文容器出现的上限
	Settle           time.Duration // 正文出现后的稳定等待
	TagExpandWait    time.Duration // 展开标签后的等待
	CommentLoadWait  time.Duration // 打开评论后的等待
	CommentRetryWait time.Duration // 评论数不符时重读前的等待
}

// DefaultPostExtractorOptions 默认参数
func DefaultPostExtractorOptions() PostExtractorOptions {
	return PostExtractorOptions{
		MaxAttempts:      3,
		RetryBackoff:     2 * time.Second,
		NavTimeout:       30 * time.Second,
		PostLoadWait:     2 * time.Second,
		BodyWaitTimeout:  10 * time.Second,
		Settle:           time.Second,
		TagExpandWait:    2 * time.Second,
		CommentLoadWait:  5 * time.Second,
		CommentRetryWait: 3 * time.Second,
	}
}

var (
	commentTimePattern = regexp.MustCompile(`\d{4}\.\s*\d{1,2}\.\s*\d{1,2}\.?(?:\s*\d{1,2}:\d{2})?`)
	commentLikePattern = regexp.MustCompile(`공감\s*(\d+)`)
)

// commentItem 页面脚本返回的评论
type commentItem struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Raw     string `json:"raw"`
	Secret  bool   `json:"secret"`
}

func (c commentItem) restricted() bool {
	return c.Secret ||
		strings.Contains(c.Content, restrictedCommentMarker) ||
		strings.Contains(c.Raw, restrictedCommentMarker)
}

// PostExtractor 打开文章页并提取完整记录
type PostExtractor struct {
	opts   PostExtractorOptions
	titles []TextStrategy
	sleep  SleepFunc
	now    func() time.Time
}

// NewPostExtractor 创建文章提取器
func NewPostExtractor(opts PostExtractorOptions) *PostExtractor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &PostExtractor{
		opts:   opts,
		titles: defaultTitleStrategies(),
		sleep:  utils.Sleep,
		now:    time.Now,
	}
}

// Extract 提取一篇文章
// 最多尝试MaxAttempts次,最终失败时导航超时返回Timeout错误,其他返回Parsing错误
func (pe *PostExtractor) Extract(ctx context.Context, s PageSession, pageURL, knownTarget string) (*models.Post, error) {
	var lastErr error
	attempts := 0

	for attempts < pe.opts.MaxAttempts {
		attempts++
		post, err := pe.attempt(ctx, s, pageURL, knownTarget)
		if err == nil {
			return post, nil
		}
		lastErr = err

		if errors.Is(err, ErrSessionClosed) || ctx.Err() != nil {
			break
		}
		utils.Warnf("提取失败 (第%d/%d次) [%s]: %v", attempts, pe.opts.MaxAttempts, pageURL, err)

		if attempts < pe.opts.MaxAttempts {
			if err := pe.sleep(ctx, pe.opts.RetryBackoff); err != nil {
				break
			}
		}
	}

	kind := models.KindParsing
	if errors.Is(lastErr, ErrNavigationTimeout) {
		kind = models.KindTimeout
	}
	return nil, models.NewCrawlError(kind, pageURL, lastErr, "提取文章失败(尝试%d次)", attempts)
}

// attempt 单次提取: 导航 -> 等待正文 -> 提取字段
func (pe *PostExtractor) attempt(ctx context.Context, s PageSession, pageURL, knownTarget string) (*models.Post, error) {
	if err := pe.navigate(ctx, s, pageURL); err != nil {
		return nil, err
	}
	if err := pe.sleep(ctx, pe.opts.PostLoadWait); err != nil {
		return nil, err
	}
	if err := s.WaitFor(ctx, bodyReadySelector, pe.opts.BodyWaitTimeout); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
		utils.Debugf("等待正文容器超时,继续提取 [%s]: %v", pageURL, err)
	}
	if err := pe.sleep(ctx, pe.opts.Settle); err != nil {
		return nil, err
	}

	post := &models.Post{
		RecordID:  pe.recordID(pageURL),
		SourceURL: pageURL,
		CrawledAt: pe.now(),
	}

	title, err := FirstText(ctx, s, pe.titles...)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = fmt.Sprintf("Post %s", post.RecordID)
	}
	post.Title = title

	if post.Author, err = pe.author(ctx, s, pageURL, knownTarget); err != nil {
		return nil, err
	}

	if post.PublishedAt, err = (SelectorText{Selectors: publishedSelector}).Text(ctx, s); err != nil {
		return nil, err
	}
	if post.ModifiedAt, err = (SelectorText{Selectors: modifiedSelectors}).Text(ctx, s); err != nil {
		return nil, err
	}

	if post.Metrics, err = pe.metrics(ctx, s); err != nil {
		return nil, err
	}

	if post.Comments, err = pe.comments(ctx, s, pageURL, post.Metrics.CommentCount); err != nil {
		return nil, err
	}

	if post.Body, err = pe.body(ctx, s, pageURL); err != nil {
		return nil, err
	}

	utils.Debugf("已提取 [%s] %s (正文%d词, 评论%d条)", post.RecordID, post.Title, post.Body.WordCount, len(post.Comments))
	return post, nil
}

// navigate 先按DOM就绪等待,超时后按完整加载再试一次
func (pe *PostExtractor) navigate(ctx context.Context, s PageSession, pageURL string) error {
	err := s.Navigate(ctx, pageURL, WaitDOMContentLoaded, pe.opts.NavTimeout)
	if err == nil || !errors.Is(err, ErrNavigationTimeout) {
		return err
	}
	utils.Debugf("DOM就绪等待超时,改为等待完整加载 [%s]", pageURL)
	return s.Navigate(ctx, pageURL, WaitLoad, pe.opts.NavTimeout)
}

// recordID 从URL解析文章ID,失败时使用当前时间
func (pe *PostExtractor) recordID(pageURL string) string {
	if id, ok := RecordIDFromURL(pageURL); ok {
		return id
	}
	id := strconv.FormatInt(pe.now().UnixNano(), 10)
	utils.Warnf("无法从URL解析文章ID,使用时间戳 %s [%s]", id, pageURL)
	return id
}

func (pe *PostExtractor) author(ctx context.Context, s PageSession, pageURL, knownTarget string) (models.Author, error) {
	authorID := knownTarget
	if authorID == "" {
		authorID, _ = TargetIDFromURL(pageURL)
	}

	name, err := (SelectorText{Selectors: authorSelectors}).Text(ctx, s)
	if err != nil {
		return models.Author{}, err
	}
	if name == "" {
		name = authorID
	}
	return models.Author{AuthorID: authorID, DisplayName: name}, nil
}

func (pe *PostExtractor) metrics(ctx context.Context, s PageSession) (models.Metrics, error) {
	var m models.Metrics
	var err error

	if m.ViewCount, err = FirstCount(ctx, s, viewSelectors); err != nil {
		return m, err
	}
	if m.LikeCount, err = FirstCount(ctx, s, likeSelectors); err != nil {
		return m, err
	}
	if m.CommentCount, err = FirstCount(ctx, s, commentCountSels); err != nil {
		return m, err
	}
	if m.Category, err = (SelectorText{Selectors: categorySelectors}).Text(ctx, s); err != nil {
		return m, err
	}
	if m.Tags, err = pe.tags(ctx, s); err != nil {
		return m, err
	}
	return m, nil
}

// tags 先点击展开按钮,再读取标签;没有结果时用脚本兜底
func (pe *PostExtractor) tags(ctx context.Context, s PageSession) ([]string, error) {
	for _, sel := range tagExpandSelectors {
		n, err := s.Count(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil, err
			}
			continue
		}
		if n == 0 {
			continue
		}
		if err := s.Click(ctx, sel); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil, err
			}
			utils.Debugf("展开标签失败: %v", err)
		} else if err := pe.sleep(ctx, pe.opts.TagExpandWait); err != nil {
			return nil, err
		}
		break
	}

	var raw []string
	for _, sel := range tagSelectors {
		texts, err := s.Texts(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil, err
			}
			continue
		}
		if len(texts) > 0 {
			raw = texts
			break
		}
	}

	tags := normalizeTags(raw)
	if len(tags) > 0 {
		return tags, nil
	}

	data, err := s.Evaluate(ctx, tagScriptJS)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
		utils.Debugf("脚本提取标签失败: %v", err)
		return []string{}, nil
	}
	fallback, err := decodeStrings(data)
	if err != nil {
		return []string{}, nil
	}
	return normalizeTags(fallback), nil
}

// normalizeTags 去掉#前缀、空白和重复
func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}

// comments 提取评论
// 评论数为0时直接返回,不打开评论区
func (pe *PostExtractor) comments(ctx context.Context, s PageSession, pageURL string, declared int) ([]models.Comment, error) {
	if declared == 0 {
		return []models.Comment{}, nil
	}

	opened := false
	for _, sel := range commentButtonSelectors {
		n, err := s.Count(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil, err
			}
			continue
		}
		if n == 0 {
			continue
		}
		if err := s.Click(ctx, sel); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil, err
			}
			utils.Debugf("打开评论失败 (%s): %v", sel, err)
			continue
		}
		opened = true
		break
	}
	if !opened {
		utils.Debugf("未找到评论按钮 [%s]", pageURL)
	}

	if err := pe.sleep(ctx, pe.opts.CommentLoadWait); err != nil {
		return nil, err
	}

	items, err := pe.readComments(ctx, s)
	if err != nil {
		return nil, err
	}
	if allRestricted(items) {
		utils.Debugf("评论全部为受限评论(%d条) [%s]", len(items), pageURL)
		return []models.Comment{}, nil
	}

	comments := toComments(items)
	if len(comments) == 0 {
		// 声明有评论但一条都没读到,再等一次
		if err := pe.sleep(ctx, pe.opts.CommentRetryWait); err != nil {
			return nil, err
		}
		if items, err = pe.readComments(ctx, s); err != nil {
			return nil, err
		}
		comments = toComments(items)
	}

	if len(comments) != declared {
		utils.Debugf("评论数 %d 与显示的 %d 不一致 [%s]", len(comments), declared, pageURL)
	}
	return comments, nil
}

func (pe *PostExtractor) readComments(ctx context.Context, s PageSession) ([]commentItem, error) {
	data, err := s.Evaluate(ctx, commentItemsJS, commentItemSelector)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
		utils.Debugf("读取评论失败: %v", err)
		return nil, nil
	}
	var items []commentItem
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		utils.Debugf("解析评论失败: %v", err)
		return nil, nil
	}
	return items, nil
}

// allRestricted 存在评论且全部为受限评论
func allRestricted(items []commentItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.restricted() {
			return false
		}
	}
	return true
}

// toComments 过滤受限和空评论,解析时间与点赞数
func toComments(items []commentItem) []models.Comment {
	comments := make([]models.Comment, 0, len(items))
	for _, item := range items {
		if item.restricted() {
			continue
		}
		text := strings.TrimSpace(item.Content)
		if text == "" {
			continue
		}
		c := models.Comment{
			Author:    strings.TrimSpace(item.Author),
			Content:   text,
			Timestamp: commentTimePattern.FindString(item.Raw),
		}
		if m := commentLikePattern.FindStringSubmatch(item.Raw); m != nil {
			c.LikeCount, _ = strconv.Atoi(m[1])
		}
		comments = append(comments, c)
	}
	return comments
}

// body 选择第一个文本长度超过阈值的正文容器
// 都不满足时对整页使用readability,仍然失败则返回空正文
func (pe *PostExtractor) body(ctx context.Context, s PageSession, pageURL string) (models.Body, error) {
	for _, sel := range bodyContainerSelectors {
		markup, err := s.HTML(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return models.Body{}, err
			}
			continue
		}
		text, err := content.ContainerText(markup)
		if err != nil || len([]rune(text)) <= content.MinBodyLength {
			continue
		}
		body, err := content.ExtractBody(markup, pageURL)
		if err != nil {
			utils.Debugf("解析正文容器 %s 失败: %v", sel, err)
			continue
		}
		return body, nil
	}

	page, err := s.HTML(ctx, "html")
	if err != nil {
		return models.Body{}, fmt.Errorf("获取页面HTML失败: %w", err)
	}
	body, err := content.ReadabilityBody(page, pageURL)
	if err == nil {
		utils.Debugf("使用readability提取正文 [%s]", pageURL)
		return body, nil
	}

	utils.Warnf("未找到有效正文 [%s]: %v", pageURL, err)
	return models.Body{ImageURLs: []string{}, LinkURLs: []string{}}, nil
}
