package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager owns the per-category loggers and their rotating file sinks.
// Categories mirror the subsystems: application lifecycle, Discord traffic,
// database operations, and errors.
type Manager struct {
	application *slog.Logger
	discord     *slog.Logger
	database    *slog.Logger
	errors      *slog.Logger

	files []*lumberjack.Logger
}

var (
	// GlobalLogger is initialized by SetupLogger and used by the package-level accessors.
	GlobalLogger *Manager

	setupOnce sync.Once
	fallback  = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// SetupLogger initializes the global logger manager. It is idempotent.
// Log files rotate via lumberjack; every category also mirrors to stdout
// (stderr for the error category). The directory defaults to ./logs and can
// be overridden with TOWERBOT_LOG_DIR.
func SetupLogger() error {
	var err error
	setupOnce.Do(func() {
		dir := os.Getenv("TOWERBOT_LOG_DIR")
		if dir == "" {
			dir = "logs"
		}
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			err = mkErr
			return
		}

		m := &Manager{}
		newSink := func(name string, console io.Writer) *slog.Logger {
			lj := &lumberjack.Logger{
				Filename:   filepath.Join(dir, name),
				MaxSize:    10, // megabytes
				MaxBackups: 5,
				MaxAge:     28, // days
				Compress:   true,
			}
			m.files = append(m.files, lj)
			return slog.New(slog.NewTextHandler(io.MultiWriter(console, lj), nil))
		}

		m.application = newSink("application.log", os.Stdout)
		m.discord = newSink("discord_events.log", os.Stdout)
		m.database = newSink("database.log", os.Stdout)
		m.errors = newSink("error.log", os.Stderr)

		GlobalLogger = m
	})
	return err
}

// Sync closes the rotating file sinks. Safe to call on shutdown.
func (m *Manager) Sync() {
	if m == nil {
		return
	}
	for _, f := range m.files {
		_ = f.Close()
	}
}

// ApplicationLogger returns the logger for application lifecycle messages.
func ApplicationLogger() *slog.Logger {
	if GlobalLogger == nil {
		return fallback
	}
	return GlobalLogger.application
}

// DiscordLogger returns the logger for Discord session and gateway messages.
func DiscordLogger() *slog.Logger {
	if GlobalLogger == nil {
		return fallback
	}
	return GlobalLogger.discord
}

// DatabaseLogger returns the logger for storage operations.
func DatabaseLogger() *slog.Logger {
	if GlobalLogger == nil {
		return fallback
	}
	return GlobalLogger.database
}

// ErrorLogger returns the logger for error reporting.
func ErrorLogger() *slog.Logger {
	if GlobalLogger == nil {
		return fallback
	}
	return GlobalLogger.errors
}
