package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. format is "json" or "text"; unknown levels
// fall back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput is New writing to out.
func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
