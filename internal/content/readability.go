package content

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/go-shiori/go-readability"
)

// ReadabilityBody 在没有合格正文容器时,从整页HTML中提取主体文本
func ReadabilityBody(pageHTML, pageURL string) (models.Body, error) {
	var parsed *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			parsed = u
		}
	}

	article, err := readability.FromReader(strings.NewReader(pageHTML), parsed)
	if err != nil {
		return models.Body{}, fmt.Errorf("readability提取失败: %w", err)
	}

	text := CleanText(article.TextContent)
	if utf8Len(text) < MinBodyLength {
		return models.Body{}, fmt.Errorf("readability正文过短: %d 字符", utf8Len(text))
	}

	return models.Body{
		PlainText: text,
		Markdown:  text,
		WordCount: WordCount(text),
		ImageURLs: []string{},
		LinkURLs:  []string{},
	}, nil
}

func utf8Len(s string) int {
	return len([]rune(s))
}
