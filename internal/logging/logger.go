// Package logging provides structured logging with rotated file and
// console output, plus a short in-memory history for the /api/logs view.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of the in-memory history
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// Config holds logger configuration
type Config struct {
	LogDir     string   // Directory for log files; empty disables the file
	Level      LogLevel // Minimum log level (default: info)
	MaxHistory int      // Entries kept in memory (default: 1000)
	Console    bool     // Also log to stdout
	MaxSizeMB  int      // Rotate after this size (default: 20)
	MaxBackups int      // Rotated files kept (default: 5)
	MaxAgeDays int      // Days rotated files are kept (default: 14)

	// Out replaces stdout for the console writer, mainly for tests
	Out io.Writer
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:     filepath.Join(home, ".robinavatar", "logs"),
		Level:      LevelInfo,
		MaxHistory: 1000,
		Console:    true,
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

// Logger wraps zerolog with a rotating file and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *lumberjack.Logger
	logPath string

	mu      sync.RWMutex
	history []LogEntry
	maxHist int
}

// New creates a new Logger with file and console output
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}

	var writers []io.Writer
	l := &Logger{
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.logPath = filepath.Join(cfg.LogDir, "robinavatar.log")
		l.file = &lumberjack.Logger{
			Filename:   l.logPath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 20),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		writers = append(writers, l.file)
	}

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	l.zlog = zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "robinavatar").
		Logger()

	l.Info("logging", "Logger initialized", map[string]interface{}{
		"logFile": l.logPath,
		"level":   level.String(),
	})
	return l, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// historyHook copies every event of a component logger into the history.
type historyHook struct {
	logger    *Logger
	component string
}

func (h historyHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if !e.Enabled() {
		return
	}
	h.logger.addToHistory(LogEntry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level.String(),
		Component: h.component,
		Message:   msg,
	})
}

func (l *Logger) addToHistory(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
}

// GetHistory returns the most recent entries, oldest first
func (l *Logger) GetHistory(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// RegisterRoutes serves the history as GET /api/logs?limit=n.
func (l *Logger) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/logs", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": l.GetHistory(limit)})
	})
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	l.Info("logging", "Logger shutting down", nil)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set. Its
// events also land in the history.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger().Hook(historyHook{logger: l, component: name})
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func withData(e *zerolog.Event, data map[string]interface{}) *zerolog.Event {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e = e.Interface(k, data[k])
	}
	return e
}

func (l *Logger) Debug(component, msg string, data map[string]interface{}) {
	c := l.Component(component)
	withData(c.Debug(), data).Msg(msg)
}

func (l *Logger) Info(component, msg string, data map[string]interface{}) {
	c := l.Component(component)
	withData(c.Info(), data).Msg(msg)
}

func (l *Logger) Warn(component, msg string, data map[string]interface{}) {
	c := l.Component(component)
	withData(c.Warn(), data).Msg(msg)
}

func (l *Logger) Error(component, msg string, err error, data map[string]interface{}) {
	c := l.Component(component)
	withData(c.Error().Err(err), data).Msg(msg)
}
