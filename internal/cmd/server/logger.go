package server

import (
	"io"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// newLoggerProvider builds the root go-logger JSON logger; named component
// loggers are derived from it through GetLogger.
func newLoggerProvider(w io.Writer, level string) *glog.BaseLogger {
	if w == nil {
		w = os.Stderr
	}
	return glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLevel(normalizeLevel(level)),
		glog.WithLoggerTypeJSON(),
	)
}

func normalizeLevel(level string) string {
	level = strings.TrimSpace(strings.ToLower(level))
	switch level {
	case "warning":
		return "warn"
	case "":
		return "info"
	}
	return level
}
