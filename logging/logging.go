// Package logging builds the agent's slog logger: text to stdout, and
// optionally a rotated copy on disk.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps debug, info, warn and error to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
}

// New returns a logger writing to stdout, and also to file when set
func New(level, file string) *slog.Logger {
	return newLogger(os.Stdout, level, file)
}

func newLogger(out io.Writer, level, file string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using info\n", err)
	}

	w := out
	if file != "" {
		w = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    32, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
	}

	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	l.Debug("System information",
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()))
	return l
}

// Component returns a child logger tagged with the component name
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String("component", name))
}
