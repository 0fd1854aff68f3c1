package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// TextStrategy 一种提取文本字段的方式
// 多个策略按顺序尝试,第一个返回非空结果的生效
type TextStrategy interface {
	Name() string
	Text(ctx context.Context, s PageSession) (string, error)
}

// LinkStrategy 一种从列表页提取文章链接的方式
type LinkStrategy interface {
	Name() string
	Links(ctx context.Context, s PageSession) ([]string, error)
}

// SelectorText 依次尝试选择器,返回第一个非空文本
type SelectorText struct {
	Label     string
	Selectors []string
}

func (st SelectorText) Name() string { return st.Label }

func (st SelectorText) Text(ctx context.Context, s PageSession) (string, error) {
	for _, sel := range st.Selectors {
		text, err := s.Text(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return "", err
			}
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	return "", nil
}

// ScriptText 在页面中执行脚本,脚本返回字符串
type ScriptText struct {
	Label  string
	Script string
	Args   []interface{}
}

func (st ScriptText) Name() string { return st.Label }

func (st ScriptText) Text(ctx context.Context, s PageSession) (string, error) {
	raw, err := s.Evaluate(ctx, st.Script, st.Args...)
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

// DocumentTitle 从页面标题中截取文章标题
// 标题形如 "文章标题 : 博客名" 或 "文章标题 - 博客名"
type DocumentTitle struct {
	// MaxLength 截取结果的最大长度,超过视为无效
	MaxLength int
	// Raw 为true时直接返回完整标题
	Raw bool
}

func (dt DocumentTitle) Name() string {
	if dt.Raw {
		return "document-title-raw"
	}
	return "document-title"
}

func (dt DocumentTitle) Text(ctx context.Context, s PageSession) (string, error) {
	title, err := s.Title(ctx)
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	if dt.Raw {
		return title, nil
	}
	for _, sep := range []string{" : ", " - "} {
		if idx := strings.Index(title, sep); idx > 0 {
			candidate := strings.TrimSpace(title[:idx])
			if dt.MaxLength <= 0 || len([]rune(candidate)) < dt.MaxLength {
				return candidate, nil
			}
		}
	}
	return "", nil
}

// ScriptLinks 执行脚本获取链接列表
type ScriptLinks struct {
	Label  string
	Script string
	Args   []interface{}
}

func (sl ScriptLinks) Name() string { return sl.Label }

func (sl ScriptLinks) Links(ctx context.Context, s PageSession) ([]string, error) {
	raw, err := s.Evaluate(ctx, sl.Script, sl.Args...)
	if err != nil {
		return nil, err
	}
	return decodeStrings(raw)
}

// FirstText 按顺序尝试策略,返回第一个非空结果
// 单个策略失败只记录调试日志,页面关闭时立即返回错误
func FirstText(ctx context.Context, s PageSession, strategies ...TextStrategy) (string, error) {
	for _, st := range strategies {
		text, err := st.Text(ctx, s)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return "", err
			}
			utils.Debugf("策略 %s 失败: %v", st.Name(), err)
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	return "", nil
}

var digitsPattern = regexp.MustCompile(`\d+`)

// ParseCount 解析带千分位的数字文本,如 "1,234" 或 "조회 1,234"
func ParseCount(text string) (int, bool) {
	m := digitsPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FirstCount 依次尝试选择器,返回第一个能解析为数字的值,都失败返回0
func FirstCount(ctx context.Context, s PageSession, selectors []string) (int, error) {
	for _, sel := range selectors {
		text, err := s.Text(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return 0, err
			}
			continue
		}
		if n, ok := ParseCount(text); ok {
			return n, nil
		}
	}
	return 0, nil
}
