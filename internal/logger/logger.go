package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var (
	// logger is the global logger instance
	logger *Logger
	once   sync.Once
)

// Logger wraps a logrus logger with colored status lines for the CLI.
type Logger struct {
	*logrus.Logger
	green *color.Color
	red   *color.Color
}

// New returns the process-wide logger.
func New() *Logger {
	once.Do(func() {
		logger = &Logger{
			Logger: logrus.New(),
			green:  color.New(color.FgGreen),
			red:    color.New(color.FgRed),
		}

		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006/01/02 15:04:05",
			FullTimestamp:   true,
			DisableSorting:  true,
		})

		if os.Getenv("DEBUG") == "true" {
			logger.SetLevel(logrus.DebugLevel)
			logger.Debug("debug logging enabled")
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
	})
	return logger
}

// Success prints a green status line to w.
func (l *Logger) Success(w io.Writer, format string, v ...interface{}) {
	l.green.Fprintln(w, fmt.Sprintf(format, v...))
}

// Failure prints a red status line to w.
func (l *Logger) Failure(w io.Writer, format string, v ...interface{}) {
	l.red.Fprintln(w, fmt.Sprintf(format, v...))
}
