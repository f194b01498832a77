// Package logger provides component-tagged structured logging on top of
// log/slog. Records are fanned out to stderr (text) and, when configured,
// to a JSON log file.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	current = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// Init configures the global logger. levelName is one of "debug", "info",
// "warn", "error" (empty defaults to info). If file is non-empty, records
// are additionally appended to it as JSON lines.
func Init(levelName, file string) error {
	lvl, err := parseLevel(levelName)
	if err != nil {
		return err
	}
	level.Set(lvl)

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	mu.Lock()
	current = slog.New(slogmulti.Fanout(handlers...))
	mu.Unlock()
	return nil
}

// SetLevel changes the minimum level without reconfiguring outputs.
func SetLevel(levelName string) error {
	lvl, err := parseLevel(levelName)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
	}
}

func log(lvl slog.Level, component, message string, fields map[string]interface{}) {
	mu.RLock()
	l := current
	mu.RUnlock()

	if !l.Enabled(context.Background(), lvl) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("component", component))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}

	l.LogAttrs(context.Background(), lvl, message, attrs...)
}

// DebugCF logs a debug message with a component tag and fields.
func DebugCF(component, message string, fields map[string]interface{}) {
	log(slog.LevelDebug, component, message, fields)
}

// InfoCF logs an info message with a component tag and fields.
func InfoCF(component, message string, fields map[string]interface{}) {
	log(slog.LevelInfo, component, message, fields)
}

// WarnCF logs a warning with a component tag and fields.
func WarnCF(component, message string, fields map[string]interface{}) {
	log(slog.LevelWarn, component, message, fields)
}

// ErrorCF logs an error with a component tag and fields.
func ErrorCF(component, message string, fields map[string]interface{}) {
	log(slog.LevelError, component, message, fields)
}
