package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: colored text on stderr and, when
// logFile is set, JSON lines appended to that file as well. The returned
// cleanup closes the file.
func SetupLogger(level slog.Level, logFile string) (*slog.Logger, func() error, error) {
	console := consoleHandler(os.Stderr, level)
	if logFile == "" {
		return slog.New(console), func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return SetupLoggerWithWriters(os.Stderr, f, level), f.Close, nil
}

// SetupLoggerWithWriters fans out to a console writer and a JSON writer.
func SetupLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		consoleHandler(console, level),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}

func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
}
