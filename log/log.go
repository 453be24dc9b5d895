// Package log 统一日志封装：控制台 + lumberjack 滚动文件双输出。
package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
}

// Setup 初始化日志级别与文件输出，留空 file 则只打控制台
func Setup(level string, file string) {
	if lv, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		logger.SetLevel(lv)
	}
	if file != "" {
		_ = os.MkdirAll(filepath.Dir(file), 0o755)
		rotate := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // 天
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotate))
	}
}

// WithAccount 带账号前缀的日志项，绘制循环内统一使用
func WithAccount(identifier string) *logrus.Entry {
	return logger.WithField("account", identifier)
}

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
func Fatalf(format string, args ...any) { logger.Fatalf(format, args...) }
