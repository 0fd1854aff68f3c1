package content

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
)

// MinBodyLength 正文容器的最小文本长度,短于此值视为空壳
const MinBodyLength = 50

// DefaultBaseURL 相对链接的解析基准
const DefaultBaseURL = "https://m.blog.naver.com/"

// nonBodySelectors 提取正文前移除的区域
var nonBodySelectors = strings.Join([]string{
	"script", "style", "noscript",
	"nav", "header", "footer", "aside", "form",
	"button", "[role=button]",
	".u_cbox", ".comment_area", "[class*=comment]",
	".post_footer", ".area_sympathy", ".wrap_postcomment",
}, ", ")

// blockSelectors 在这些元素后插入换行,保持段落结构
const blockSelectors = "p, div, li, tr, blockquote, h1, h2, h3, h4, h5, h6, section, article"

// lineFilter 噪声行判断,返回true表示丢弃
type lineFilter func(line string) bool

var (
	numericLinePattern = regexp.MustCompile(`^[\d\s,.:/\-]+$`)
	dateLinePattern    = regexp.MustCompile(`^\d{4}\s*[.\-/]\s*\d{1,2}\s*[.\-/]\s*\d{1,2}\.?(\s+\d{1,2}:\d{2}(:\d{2})?)?$`)
)

// noiseFilters 按顺序应用的噪声行规则
var noiseFilters = []lineFilter{
	func(line string) bool { return line == "" },
	func(line string) bool { return dateLinePattern.MatchString(line) },
	func(line string) bool { return numericLinePattern.MatchString(line) },
	func(line string) bool { return utf8.RuneCountInString(line) <= 3 && !containsHangul(line) },
}

func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// CleanText 逐行去除空白并过滤噪声行
func CleanText(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isNoise(line string) bool {
	for _, f := range noiseFilters {
		if f(line) {
			return true
		}
	}
	return false
}

// WordCount 空白分隔的词数
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ContainerText 返回容器去除非正文区域后的纯文本
func ContainerText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("解析正文HTML失败: %w", err)
	}
	return CleanText(readableText(doc.Selection)), nil
}

func readableText(sel *goquery.Selection) string {
	sel.Find(nonBodySelectors).Remove()
	sel.Find("br").ReplaceWithHtml("\n")
	sel.Find(blockSelectors).AppendHtml("\n")
	return sel.Text()
}

// ExtractBody 从正文容器HTML生成Body
func ExtractBody(markup, baseURL string) (models.Body, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return models.Body{}, fmt.Errorf("无效的基准URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return models.Body{}, fmt.Errorf("解析正文HTML失败: %w", err)
	}

	images := collectURLs(doc.Find("img"), base, "src", "data-src", "data-lazy-src")
	links := collectURLs(doc.Find("a[href]"), base, "href")

	text := CleanText(readableText(doc.Selection))

	return models.Body{
		RawMarkup: markup,
		PlainText: text,
		Markdown:  ToMarkdown(markup),
		WordCount: WordCount(text),
		ImageURLs: images,
		LinkURLs:  links,
	}, nil
}

// collectURLs 读取第一个非空属性,解析为绝对地址并去重
func collectURLs(sel *goquery.Selection, base *url.URL, attrs ...string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0)
	sel.Each(func(_ int, s *goquery.Selection) {
		var raw string
		for _, attr := range attrs {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				raw = strings.TrimSpace(v)
				break
			}
		}
		abs, ok := ResolveURL(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		result = append(result, abs)
	})
	return result
}

// ResolveURL 把相对地址解析为http(s)绝对地址,非网页链接返回false
func ResolveURL(base *url.URL, raw string) (string, bool) {
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}
