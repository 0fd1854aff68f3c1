package crawlers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// MobileHost 移动版博客域名
	MobileHost = "m.blog.naver.com"

	mobileBase = "https://" + MobileHost + "/"
)

var (
	logNoPattern      = regexp.MustCompile(`[?&]logNo=(\d+)`)
	trailingIDPattern = regexp.MustCompile(`/(\d+)(?:[?#]|$)`)
	blogIDPattern     = regexp.MustCompile(`[?&]blogId=([^&#]+)`)
	numericSegment    = regexp.MustCompile(`^\d+$`)
)

// MainURL 目标主页
func MainURL(targetID string) string {
	return mobileBase + url.PathEscape(targetID)
}

// ListingURL 目标的全部文章列表页
func ListingURL(targetID string) string {
	return MainURL(targetID) + "?categoryNo=0&listStyle=post&tab=1"
}

// PostURL 文章的规范URL
func PostURL(targetID, recordID string) string {
	return fmt.Sprintf("%sPostView.naver?blogId=%s&logNo=%s", mobileBase, url.QueryEscape(targetID), recordID)
}

// RecordIDFromURL 从URL中解析文章ID: 优先logNo参数,其次路径末尾的数字
func RecordIDFromURL(raw string) (string, bool) {
	if m := logNoPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if m := trailingIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	return "", false
}

// TargetIDFromURL 从URL中解析目标ID: 优先blogId参数,其次第一个非数字路径段
func TargetIDFromURL(raw string) (string, bool) {
	if m := blogIDPattern.FindStringSubmatch(raw); m != nil {
		if id, err := url.QueryUnescape(m[1]); err == nil && id != "" {
			return id, true
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg == "" || numericSegment.MatchString(seg) || strings.Contains(seg, ".") {
			continue
		}
		return seg, true
	}
	return "", false
}

// Canonicalize 把同一篇文章的不同链接形式统一为一个规范URL
// 链接必须属于该目标(不区分大小写地包含目标ID),并能解析出文章ID
func Canonicalize(raw, targetID string) (canonical, recordID string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || targetID == "" {
		return "", "", false
	}

	base, _ := url.Parse(mobileBase)
	ref, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	abs := base.ResolveReference(ref).String()

	if !strings.Contains(strings.ToLower(abs), strings.ToLower(targetID)) {
		return "", "", false
	}
	if owner, found := TargetIDFromURL(abs); found && !strings.EqualFold(owner, targetID) {
		return "", "", false
	}

	recordID, ok = RecordIDFromURL(abs)
	if !ok {
		return "", "", false
	}
	return PostURL(targetID, recordID), recordID, true
}

// CanonicalizeAll 规范化并按首次出现顺序去重
func CanonicalizeAll(raws []string, targetID string) []string {
	seen := make(map[string]struct{}, len(raws))
	result := make([]string, 0, len(raws))
	for _, raw := range raws {
		canonical, _, ok := Canonicalize(raw, targetID)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		result = append(result, canonical)
	}
	return result
}
