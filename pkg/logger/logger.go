package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config 定義 Log 輸出設定
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Logger 封裝 logrus，服務內所有元件共用同一個實例
type Logger struct {
	*logrus.Logger
}

// New 依設定建立 Logger，輸出到 stdout
func New(cfg Config) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(parseLevel(cfg.Level))
	if strings.EqualFold(cfg.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Logger{Logger: l}
}

// Wrap 包裝既有的 logrus.Logger (測試時搭配 hooks/test 使用)
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{Logger: l}
}

// Discard 不輸出任何內容
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// Component 回傳帶有 component 欄位的 Entry
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
