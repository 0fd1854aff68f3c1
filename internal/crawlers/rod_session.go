package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/time/rate"
)

// clickTimeout 点击前查找元素的最长等待
const clickTimeout = 5 * time.Second

// RodSessionFactory 基于go-rod的页面工厂
// 一次运行共用一个浏览器进程,每个目标使用独立的标签页
type RodSessionFactory struct {
	headless bool
	headers  http.Header
	limiter  *rate.Limiter
	monitor  *ResourceMonitor

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodSessionFactory 创建页面工厂
// navigateRate 为每秒最多导航次数, <=0 表示不限
func NewRodSessionFactory(headless bool, headers http.Header, navigateRate float64, monitor *ResourceMonitor) *RodSessionFactory {
	limit := rate.Inf
	if navigateRate > 0 {
		limit = rate.Limit(navigateRate)
	}
	return &RodSessionFactory{
		headless: headless,
		headers:  headers,
		limiter:  rate.NewLimiter(limit, 1),
		monitor:  monitor,
	}
}

// launchBrowser 启动浏览器(只启动一次)
func (f *RodSessionFactory) launchBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	l := launcher.New().Headless(f.headless)
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(models.KindNetwork, "", err, "启动浏览器失败")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCrawlError(models.KindNetwork, "", err, "连接浏览器失败")
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	f.browser = browser
	return browser, nil
}

// Open 为目标创建新标签页,模拟移动端设备
func (f *RodSessionFactory) Open(ctx context.Context, targetID string) (PageSession, error) {
	if f.monitor != nil {
		if err := f.monitor.WaitForCapacity(ctx); err != nil {
			return nil, err
		}
	}

	browser, err := f.launchBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, models.NewCrawlError(models.KindNetwork, targetID, err, "创建标签页失败")
	}

	if err := page.Emulate(devices.IPhoneX); err != nil {
		utils.Warnf("设置移动端模拟失败 [%s]: %v", targetID, err)
	}

	if dict := headerDict(f.headers); len(dict) > 0 {
		if _, err := page.SetExtraHeaders(dict); err != nil {
			utils.Warnf("设置HTTP头部失败 [%s]: %v", targetID, err)
		}
	}

	utils.Debugf("已为目标 %s 打开标签页", targetID)
	return &rodSession{browser: browser, page: page, limiter: f.limiter}, nil
}

// Close 关闭浏览器
func (f *RodSessionFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	utils.Debugf("浏览器已关闭")
	return err
}

// headerDict 转为SetExtraHeaders需要的键值交替列表
// User-Agent 由设备模拟决定,这里跳过
func headerDict(headers http.Header) []string {
	dict := make([]string, 0, len(headers)*2)
	for name, values := range headers {
		if len(values) == 0 || strings.EqualFold(name, "User-Agent") || strings.EqualFold(name, "Accept-Encoding") {
			continue
		}
		dict = append(dict, name, values[0])
	}
	return dict
}

// rodSession PageSession的go-rod实现
type rodSession struct {
	browser *rod.Browser
	page    *rod.Page
	limiter *rate.Limiter
	closed  atomic.Bool
}

func (s *rodSession) scoped(ctx context.Context) *rod.Page {
	return s.page.Context(ctx)
}

func (s *rodSession) check(err error) error {
	if err == nil {
		return nil
	}
	if s.IsClosed() {
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	return err
}

func (s *rodSession) Navigate(ctx context.Context, url string, policy WaitPolicy, timeout time.Duration) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	p := s.scoped(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	var wait func()
	if policy == WaitDOMContentLoaded {
		wait = p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	}

	if err := p.Navigate(url); err != nil {
		return s.navigationError(p, url, err)
	}

	if wait != nil {
		wait()
		if err := p.GetContext().Err(); err != nil {
			return s.navigationError(p, url, err)
		}
		return nil
	}

	if err := p.WaitLoad(); err != nil {
		return s.navigationError(p, url, err)
	}
	return nil
}

func (s *rodSession) navigationError(p *rod.Page, url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(p.GetContext().Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w [%s]: %v", ErrNavigationTimeout, url, err)
	}
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		return models.NewCrawlError(models.KindNetwork, url, err, "导航失败: %s", navErr.Reason)
	}
	return s.check(err)
}

func (s *rodSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	p := s.scoped(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if _, err := p.Element(selector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return s.check(err)
	}
	return nil
}

func (s *rodSession) Evaluate(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	res, err := s.scoped(ctx).Evaluate(rod.Eval(script, args...).ByPromise())
	if err != nil {
		return nil, s.check(err)
	}
	data, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("序列化脚本结果失败: %w", err)
	}
	return data, nil
}

func (s *rodSession) Count(ctx context.Context, selector string) (int, error) {
	els, err := s.scoped(ctx).Elements(selector)
	if err != nil {
		return 0, s.check(err)
	}
	return len(els), nil
}

func (s *rodSession) first(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := s.scoped(ctx).Has(selector)
	if err != nil {
		return nil, s.check(err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return el, nil
}

func (s *rodSession) Text(ctx context.Context, selector string) (string, error) {
	el, err := s.first(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", s.check(err)
	}
	return text, nil
}

func (s *rodSession) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := s.scoped(ctx).Elements(selector)
	if err != nil {
		return nil, s.check(err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (s *rodSession) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	el, err := s.first(ctx, selector)
	if err != nil {
		return "", false, err
	}
	value, err := el.Attribute(name)
	if err != nil {
		return "", false, s.check(err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (s *rodSession) HTML(ctx context.Context, selector string) (string, error) {
	el, err := s.first(ctx, selector)
	if err != nil {
		return "", err
	}
	html, err := el.HTML()
	if err != nil {
		return "", s.check(err)
	}
	return html, nil
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	info, err := s.scoped(ctx).Info()
	if err != nil {
		return "", s.check(err)
	}
	return info.Title, nil
}

func (s *rodSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSession) ScrollToBottom(ctx context.Context) error {
	_, err := s.Evaluate(ctx, `() => { window.scrollTo(0, document.body.scrollHeight); return true }`)
	return err
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	p := s.scoped(ctx).Timeout(clickTimeout)
	defer p.CancelTimeout()

	el, err := p.Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return s.check(err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// 被遮挡或不可见时退回到脚本点击
		if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
			return s.check(err)
		}
	}
	return nil
}

func (s *rodSession) IsClosed() bool {
	if s.closed.Load() {
		return true
	}
	if _, err := (proto.TargetGetTargetInfo{TargetID: s.page.TargetID}).Call(s.browser); err != nil {
		s.closed.Store(true)
		return true
	}
	return false
}

func (s *rodSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.page.Close()
}
