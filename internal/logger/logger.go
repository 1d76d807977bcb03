package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultDir  = "logs"
	logFileName = "ai-news-digest.log"
)

// Logger 控制台彩色文本日志 + 文件 JSON 日志
type Logger struct {
	mu      sync.RWMutex
	console *logrus.Logger
	file    *logrus.Logger
}

var std *Logger

func init() {
	std = &Logger{console: newConsoleLogger(os.Stdout)}
	if err := std.openFile(defaultDir); err != nil {
		std.console.Errorf("无法创建日志目录: %v", err)
	}
}

func newConsoleLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	return l
}

// openFile 日志文件按 10MB 轮转，保留 10 个备份 30 天
func (l *Logger) openFile(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file := logrus.New()
	file.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint:     false,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	file.SetLevel(logrus.InfoLevel)
	file.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	})

	l.mu.Lock()
	l.file = file
	l.mu.Unlock()
	return nil
}

// SetLevel 设置控制台日志级别；文件日志最多记录到 info，debug 只输出到控制台
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	std.console.SetLevel(lvl)
	if std.file != nil {
		std.file.SetLevel(min(lvl, logrus.InfoLevel))
	}
	return nil
}

// SetOutput 替换控制台输出
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.console.SetOutput(w)
}

func (l *Logger) logf(level logrus.Level, format string, args ...any) {
	l.mu.RLock()
	console, file := l.console, l.file
	l.mu.RUnlock()

	if file != nil {
		file.Logf(level, format, args...)
	}
	console.Logf(level, format, args...)
}

func Debugf(format string, args ...any) {
	std.logf(logrus.DebugLevel, format, args...)
}

func Infof(format string, args ...any) {
	std.logf(logrus.InfoLevel, format, args...)
}

func Warnf(format string, args ...any) {
	std.logf(logrus.WarnLevel, format, args...)
}

func Errorf(format string, args ...any) {
	std.logf(logrus.ErrorLevel, format, args...)
}

// Fatalf 记录错误后退出进程
func Fatalf(format string, args ...any) {
	std.logf(logrus.ErrorLevel, format, args...)
	std.console.Exit(1)
}
