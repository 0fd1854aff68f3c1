package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// WaitPolicy 导航完成的判定条件
type WaitPolicy string

const (
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded" // DOM解析完成
	WaitLoad             WaitPolicy = "load"             // 全部资源加载完成
)

var (
	// ErrSessionClosed 页面已关闭,后续操作没有意义
	ErrSessionClosed = errors.New("页面会话已关闭")

	// ErrNavigationTimeout 导航超时
	ErrNavigationTimeout = errors.New("页面导航超时")

	// ErrElementNotFound 选择器没有匹配的元素
	ErrElementNotFound = errors.New("未找到元素")
)

// PageSession 一个目标使用的浏览器页面
//
// 爬取核心只依赖这些能力: 导航、在页面中执行脚本、按选择器查询、
// 滚动到底部、点击以及"页面已关闭"判断。
type PageSession interface {
	// Navigate 打开URL,超时返回包装了ErrNavigationTimeout的错误
	Navigate(ctx context.Context, url string, policy WaitPolicy, timeout time.Duration) error

	// WaitFor 等待选择器出现
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Evaluate 执行函数表达式形式的脚本,返回JSON结果
	Evaluate(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error)

	// Count 匹配选择器的元素数
	Count(ctx context.Context, selector string) (int, error)

	// Text 第一个匹配元素的文本,没有匹配返回ErrElementNotFound
	Text(ctx context.Context, selector string) (string, error)

	// Texts 所有匹配元素的文本
	Texts(ctx context.Context, selector string) ([]string, error)

	// Attribute 第一个匹配元素的属性值
	Attribute(ctx context.Context, selector, name string) (string, bool, error)

	// HTML 第一个匹配元素的outerHTML
	HTML(ctx context.Context, selector string) (string, error)

	// Title 页面标题
	Title(ctx context.Context) (string, error)

	// URL 当前地址
	URL() string

	// ScrollToBottom 滚动到页面底部
	ScrollToBottom(ctx context.Context) error

	// Click 点击第一个匹配元素
	Click(ctx context.Context, selector string) error

	// IsClosed 页面是否已经关闭
	IsClosed() bool

	// Close 关闭页面
	Close() error
}

// SessionFactory 为目标打开页面会话
type SessionFactory interface {
	Open(ctx context.Context, targetID string) (PageSession, error)
}

// SleepFunc 可替换的等待函数,测试中用于跳过真实等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// decodeStrings 把Evaluate结果解码为字符串列表
func decodeStrings(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
