package models

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Author 作者信息
type Author struct {
	AuthorID    string `json:"author_id"`
	DisplayName string `json:"display_name"`
}

// Metrics 文章统计信息
type Metrics struct {
	ViewCount    int      `json:"view_count"`
	LikeCount    int      `json:"like_count"`
	CommentCount int      `json:"comment_count"`
	Category     string   `json:"category,omitempty"`
	Tags         []string `json:"tags"`
}

// Body 正文内容
// RawMarkup 和 Markdown 只在提取过程中使用,不写入导出文件
type Body struct {
	RawMarkup string   `json:"-"`
	PlainText string   `json:"plain_text"`
	Markdown  string   `json:"-"`
	WordCount int      `json:"word_count"`
	ImageURLs []string `json:"image_urls"`
	LinkURLs  []string `json:"link_urls"`
}

// Comment 评论,在文章内按位置标识
type Comment struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	LikeCount int    `json:"like_count"`
}

// Post 一篇完整提取的文章
type Post struct {
	RecordID    string    `json:"record_id"`
	Title       string    `json:"title"`
	Author      Author    `json:"author"`
	PublishedAt string    `json:"published_at"`
	ModifiedAt  string    `json:"modified_at,omitempty"`
	SourceURL   string    `json:"source_url"`
	Metrics     Metrics   `json:"metrics"`
	Body        Body      `json:"body"`
	Comments    []Comment `json:"comments"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// DedupKey 去重键: 优先使用record_id,否则使用source_url
func (p *Post) DedupKey() string {
	if p.RecordID != "" {
		return p.RecordID
	}
	return p.SourceURL
}

// ToJSON 序列化为JSON
func (p *Post) ToJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// FromJSON 从JSON反序列化
func (p *Post) FromJSON(data []byte) error {
	return json.Unmarshal(data, p)
}

var publishedPattern = regexp.MustCompile(`(\d{4})\s*[.\-/]\s*(\d{1,2})\s*[.\-/]\s*(\d{1,2})\.?(?:\s+(\d{1,2}):(\d{2}))?`)

// ParsePublishedAt 解析站点上出现的日期格式
// 支持 "2024. 1. 15. 10:30"、"2024.01.15"、"2024-01-15 10:30" 和 RFC3339
func ParsePublishedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}

	m := publishedPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	hour, minute := 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local), true
}
