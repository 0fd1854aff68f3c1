package models

import (
	"errors"
	"fmt"
)

// ErrorKind 爬取错误分类
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"          // 目标不存在
	KindTimeout           ErrorKind = "timeout"            // 导航或等待超时(重试耗尽)
	KindParsing           ErrorKind = "parsing"            // 字段提取失败(重试耗尽)
	KindNetwork           ErrorKind = "network"            // 传输层失败
	KindValidation        ErrorKind = "validation"         // 输入参数错误
	KindCheckpointCorrupt ErrorKind = "checkpoint_corrupt" // 检查点缺失或不可读
)

// 哨兵错误,配合 errors.Is 使用
var (
	ErrNotFound          = &CrawlError{Kind: KindNotFound}
	ErrTimeout           = &CrawlError{Kind: KindTimeout}
	ErrParsing           = &CrawlError{Kind: KindParsing}
	ErrNetwork           = &CrawlError{Kind: KindNetwork}
	ErrValidation        = &CrawlError{Kind: KindValidation}
	ErrCheckpointCorrupt = &CrawlError{Kind: KindCheckpointCorrupt}
)

// CrawlError 带分类的爬取错误
type CrawlError struct {
	Kind   ErrorKind // 错误分类
	Target string    // 出错的目标ID或URL
	Msg    string    // 描述
	Cause  error     // 底层错误
}

// NewCrawlError 创建分类错误
func NewCrawlError(kind ErrorKind, target string, cause error, format string, args ...interface{}) *CrawlError {
	return &CrawlError{
		Kind:   kind,
		Target: target,
		Msg:    fmt.Sprintf(format, args...),
		Cause:  cause,
	}
}

// Error 实现error接口
func (e *CrawlError) Error() string {
	msg := string(e.Kind)
	if e.Target != "" {
		msg += " [" + e.Target + "]"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 支持errors.Unwrap
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is 按分类匹配,使 errors.Is(err, ErrTimeout) 成立
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误链中第一个CrawlError的分类,没有则返回空串
func KindOf(err error) ErrorKind {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
