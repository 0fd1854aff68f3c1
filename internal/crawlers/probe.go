package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// Prober 检查目标是否存在
// 只检测明确的"不存在"提示,没有提示即视为存在
type Prober interface {
	Probe(ctx context.Context, s PageSession, targetID string) error
}

// SessionProber 用浏览器页面打开目标主页检测
type SessionProber struct {
	Timeout time.Duration
}

func (p SessionProber) Probe(ctx context.Context, s PageSession, targetID string) error {
	mainURL := MainURL(targetID)
	if err := s.Navigate(ctx, mainURL, WaitDOMContentLoaded, p.Timeout); err != nil {
		return models.NewCrawlError(models.KindNetwork, targetID, err, "无法访问目标主页")
	}
	for _, sel := range notFoundSelectors {
		n, err := s.Count(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return models.NewCrawlError(models.KindNetwork, targetID, err, "检测目标时页面关闭")
			}
			continue
		}
		if n > 0 {
			return models.NewCrawlError(models.KindNotFound, targetID, nil, "目标不存在(页面包含 %s)", sel)
		}
	}
	return nil
}

// StaticProber 用colly发起普通HTTP请求检测,不占用浏览器
type StaticProber struct {
	BaseURL string // 为空时使用移动版域名
	Headers http.Header
	Timeout time.Duration
}

func (p StaticProber) mainURL(targetID string) string {
	if p.BaseURL == "" {
		return MainURL(targetID)
	}
	return strings.TrimRight(p.BaseURL, "/") + "/" + targetID
}

func (p StaticProber) Probe(ctx context.Context, _ PageSession, targetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	if p.Timeout > 0 {
		c.SetRequestTimeout(p.Timeout)
	}

	var probeErr error
	responded := false

	c.OnRequest(func(r *colly.Request) {
		for name, values := range p.Headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		responded = true
		body, err := decodeBody(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			utils.Warnf("解码响应失败 [%s]: %v", targetID, err)
			body = r.Body
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			utils.Debugf("解析目标主页失败 [%s]: %v", targetID, err)
			return
		}
		for _, sel := range notFoundSelectors {
			if doc.Find(sel).Length() > 0 {
				probeErr = models.NewCrawlError(models.KindNotFound, targetID, nil, "目标不存在(页面包含 %s)", sel)
				return
			}
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		responded = true
		if r != nil && r.StatusCode == http.StatusNotFound {
			probeErr = models.NewCrawlError(models.KindNotFound, targetID, err, "目标不存在(HTTP 404)")
			return
		}
		probeErr = models.NewCrawlError(models.KindNetwork, targetID, err, "请求目标主页失败")
	})

	if err := c.Visit(p.mainURL(targetID)); err != nil && !responded {
		return models.NewCrawlError(models.KindNetwork, targetID, err, "请求目标主页失败")
	}
	c.Wait()
	return probeErr
}

// decodeBody 按Content-Encoding解压响应体
func decodeBody(encoding string, body []byte) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		utils.Warnf("未知的Content-Encoding: %s", encoding)
		return body, nil
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", encoding, err)
	}
	return out, nil
}
