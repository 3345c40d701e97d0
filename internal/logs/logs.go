package logs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	consoleOnce   sync.Once
	consoleLogger *slog.Logger

	fileOnce   sync.Once
	fileLogger *slog.Logger
	fileErr    error
)

// ConsoleLogger returns a process-wide logger writing colorized output to
// stderr and installs it as the slog default.
func ConsoleLogger() *slog.Logger {
	consoleOnce.Do(func() {
		w := os.Stderr

		consoleLogger = slog.New(tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.Kitchen,
		}))
		slog.SetDefault(consoleLogger)
	})
	return consoleLogger
}

// FileLogger returns a JSON logger appending to logs/<timestamp>.log under
// dir. The file is opened once per process and shared by all callers.
func FileLogger(dir string) (*slog.Logger, error) {
	fileOnce.Do(func() {
		logDir := filepath.Join(dir, "logs")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fileErr = fmt.Errorf("creating log directory: %w", err)
			return
		}

		name := filepath.Join(logDir, time.Now().Format("2006-01-02_15-04-05")+".log")
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			fileErr = fmt.Errorf("opening log file: %w", err)
			return
		}

		opts := &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		}
		fileLogger = slog.New(slog.NewJSONHandler(f, opts))
	})
	return fileLogger, fileErr
}
