package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志器
var Logger zerolog.Logger

// sinkWriter 常驻在写入链中,把日志转发给当前挂载的LogSink
var sinkWriter = &sinkSwitch{}

// LogConfig 日志配置
type LogConfig struct {
	Level      string // 日志级别: trace, debug, info, warn, error, fatal, panic
	LogDir     string // 日志目录
	MaxSize    int    // 单个日志文件最大大小(MB)
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩旧日志
	NoConsole  bool   // 不输出到控制台
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// 日志文件名
const (
	mainLogName  = "blogcrawl.log"
	errorLogName = "blogcrawl_error.log"
)

// InitLogger 初始化全局日志器
// 写入链: 主日志(全部级别) / 错误日志(error及以上) / LogSink / 控制台
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{
		config.rotating(mainLogName),
		levelFilter{w: config.rotating(errorLogName), min: zerolog.ErrorLevel},
		sinkWriter,
	}
	if !config.NoConsole {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().Str("level", level.String()).Str("log_dir", config.LogDir).Msg("日志系统初始化完成")
	return nil
}

// rotating 按配置创建轮转日志文件
func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// levelFilter 只写入min及以上级别, 没有级别信息的写入被丢弃
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}

func Info(msg string)                          { Logger.Info().Msg(msg) }
func Infof(format string, args ...interface{}) { Logger.Info().Msgf(format, args...) }
func Warn(msg string)                          { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...interface{}) { Logger.Warn().Msgf(format, args...) }
func Debug(msg string)                         { Logger.Debug().Msg(msg) }
func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}

// Error 带错误字段的错误日志
func Error(err error, msg string) { Logger.Error().Err(err).Msg(msg) }

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }
