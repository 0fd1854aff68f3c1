package utils

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSinkBlockTimeout 通道满时生产者最多等待的时间
const DefaultSinkBlockTimeout = 50 * time.Millisecond

// LogEvent 投递给观察者的一条日志
type LogEvent struct {
	Time    time.Time
	Level   zerolog.Level
	Message string
}

// Line 格式化为单行文本
func (e LogEvent) Line() string {
	return e.Time.Format("15:04:05") + " [" + strings.ToUpper(e.Level.String()) + "] " + e.Message
}

// LogSink 有界日志通道
// 生产者在通道满时最多等待BlockTimeout,超时丢弃并计数
type LogSink struct {
	events       chan LogEvent
	blockTimeout time.Duration
	minLevel     zerolog.Level
	dropped      atomic.Int64
}

// NewLogSink 创建日志通道
func NewLogSink(capacity int, minLevel zerolog.Level) *LogSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &LogSink{
		events:       make(chan LogEvent, capacity),
		blockTimeout: DefaultSinkBlockTimeout,
		minLevel:     minLevel,
	}
}

// Events 消费端通道
func (s *LogSink) Events() <-chan LogEvent {
	return s.events
}

// Dropped 因通道满被丢弃的条数
func (s *LogSink) Dropped() int64 {
	return s.dropped.Load()
}

// Publish 投递一条日志,不会无限阻塞
func (s *LogSink) Publish(ev LogEvent) bool {
	if ev.Level < s.minLevel {
		return true
	}
	select {
	case s.events <- ev:
		return true
	default:
	}

	timer := time.NewTimer(s.blockTimeout)
	defer timer.Stop()
	select {
	case s.events <- ev:
		return true
	case <-timer.C:
		s.dropped.Add(1)
		return false
	}
}

// sinkSwitch 把zerolog输出转发给当前挂载的LogSink
type sinkSwitch struct {
	current atomic.Pointer[LogSink]
}

func (w *sinkSwitch) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *sinkSwitch) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	sink := w.current.Load()
	if sink == nil {
		return len(p), nil
	}
	sink.Publish(decodeLogLine(level, p))
	return len(p), nil
}

// decodeLogLine 从zerolog的JSON行中取出消息,解析失败时保留原文
func decodeLogLine(level zerolog.Level, p []byte) LogEvent {
	ev := LogEvent{Time: time.Now(), Level: level}
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		ev.Message = strings.TrimSpace(string(p))
		return ev
	}
	if msg, ok := fields[zerolog.MessageFieldName].(string); ok {
		ev.Message = msg
	}
	if errMsg, ok := fields[zerolog.ErrorFieldName].(string); ok {
		if ev.Message != "" {
			ev.Message += ": "
		}
		ev.Message += errMsg
	}
	return ev
}

// AttachLogSink 挂载观察者,替换之前挂载的
func AttachLogSink(sink *LogSink) {
	sinkWriter.current.Store(sink)
}

// DetachLogSink 仅当当前挂载的是sink时卸载
func DetachLogSink(sink *LogSink) {
	sinkWriter.current.CompareAndSwap(sink, nil)
}
