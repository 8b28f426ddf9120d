// Package logging provides config-driven categorized logging for skillforge.
// Every subsystem logs through a Category so output can be filtered per concern.
// The backend is zap; until Initialize is called every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and configuration
	CategoryController Category = "controller" // Iteration state machine
	CategorySafety     Category = "safety"     // Path and code checks
	CategorySandbox    Category = "sandbox"    // Child process execution
	CategoryLedger     Category = "ledger"     // Persistent memory ledger
	CategoryTemplates  Category = "templates"  // Template registry and assembly
	CategoryReasoning  Category = "reasoning"  // Reasoning collaborator calls
)

// AllCategories lists every known category in display order.
func AllCategories() []Category {
	return []Category{
		CategoryBoot,
		CategoryController,
		CategorySafety,
		CategorySandbox,
		CategoryLedger,
		CategoryTemplates,
		CategoryReasoning,
	}
}

// Config controls the logging backend.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // console, json
	File       string          // optional log file; empty means stderr
	Categories map[string]bool // nil enables every category
}

// Logger writes printf-style messages for one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	current Config
	loggers = make(map[Category]*Logger)
	sinks   []func()
)

// Initialize builds the zap backend from cfg. It may be called again to
// reconfigure: the old backend is flushed, its log file closed, and every
// category logger is rebuilt on the new one.
func Initialize(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "", "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	var closeFn func()
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		ws = zapcore.AddSync(f)
		closeFn = func() { _ = f.Close() }
	}

	InitializeWithCore(zapcore.NewCore(encoder, ws, level), cfg.Categories)

	mu.Lock()
	current.Level = cfg.Level
	current.Format = cfg.Format
	current.File = cfg.File
	if closeFn != nil {
		sinks = append(sinks, closeFn)
	}
	mu.Unlock()

	Get(CategoryBoot).Debug("Logging initialized: level=%s format=%s file=%q", cfg.Level, cfg.Format, cfg.File)
	return nil
}

// InitializeWithCore installs an arbitrary zap core. Tests use it with an
// observer core to capture entries.
func InitializeWithCore(core zapcore.Core, categories map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	releaseLocked()
	base = zap.New(core)
	current = Config{Categories: categories}
	loggers = make(map[Category]*Logger)
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if current.Categories == nil {
		return true
	}
	enabled, exists := current.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// With returns a logger that attaches key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	b := base
	mu.RUnlock()
	return b.Sync()
}

// CloseAll flushes the backend and closes any file sinks.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	releaseLocked()
	base = zap.NewNop()
	loggers = make(map[Category]*Logger)
}

// releaseLocked flushes the current backend and closes its file sinks.
func releaseLocked() {
	_ = base.Sync()
	for _, closeFn := range sinks {
		closeFn()
	}
	sinks = nil
}

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// =============================================================================
// Convenience helpers
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Controller(format string, args ...interface{})      { Get(CategoryController).Info(format, args...) }
func ControllerDebug(format string, args ...interface{}) { Get(CategoryController).Debug(format, args...) }
func ControllerWarn(format string, args ...interface{})  { Get(CategoryController).Warn(format, args...) }
func ControllerError(format string, args ...interface{}) { Get(CategoryController).Error(format, args...) }

func Safety(format string, args ...interface{})      { Get(CategorySafety).Info(format, args...) }
func SafetyDebug(format string, args ...interface{}) { Get(CategorySafety).Debug(format, args...) }
func SafetyWarn(format string, args ...interface{})  { Get(CategorySafety).Warn(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Info(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debug(format, args...) }
func SandboxWarn(format string, args ...interface{})  { Get(CategorySandbox).Warn(format, args...) }
func SandboxError(format string, args ...interface{}) { Get(CategorySandbox).Error(format, args...) }

func Ledger(format string, args ...interface{})      { Get(CategoryLedger).Info(format, args...) }
func LedgerDebug(format string, args ...interface{}) { Get(CategoryLedger).Debug(format, args...) }
func LedgerWarn(format string, args ...interface{})  { Get(CategoryLedger).Warn(format, args...) }

func Templates(format string, args ...interface{})      { Get(CategoryTemplates).Info(format, args...) }
func TemplatesDebug(format string, args ...interface{}) { Get(CategoryTemplates).Debug(format, args...) }
func TemplatesWarn(format string, args ...interface{})  { Get(CategoryTemplates).Warn(format, args...) }

func Reasoning(format string, args ...interface{})      { Get(CategoryReasoning).Info(format, args...) }
func ReasoningDebug(format string, args ...interface{}) { Get(CategoryReasoning).Debug(format, args...) }
func ReasoningWarn(format string, args ...interface{})  { Get(CategoryReasoning).Warn(format, args...) }
