// Package logging provides categorized file-based logging for dashagent.
// Logs are written to .dashagent/logs/ with one file per category.
// Nothing is written unless debug mode is enabled; disabled categories get a no-op logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and configuration
	CategoryParser   Category = "parser"   // Command parsing and decoding
	CategoryExecutor Category = "executor" // Batch execution
	CategoryBackup   Category = "backup"   // Snapshots and rollback
	CategoryLayout   Category = "layout"   // Layout document reads and writes
	CategoryFiles    Category = "files"    // File target writes
	CategoryDataset  Category = "dataset"  // Dataset loading and inspection
	CategoryJournal  Category = "journal"  // Command history store
	CategoryWatch    Category = "watch"    // Layout file watcher
	CategoryPlanner  Category = "planner"  // Language model calls
	CategoryShell    Category = "shell"    // Interactive shell
)

// AllCategories lists every known category in a stable order.
var AllCategories = []Category{
	CategoryBoot, CategoryParser, CategoryExecutor, CategoryBackup, CategoryLayout,
	CategoryFiles, CategoryDataset, CategoryJournal, CategoryWatch, CategoryPlanner, CategoryShell,
}

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	DebugMode  bool
	Level      string
	JSONFormat bool
	Categories map[string]bool
}

var (
	loggers   = make(map[Category]*zap.SugaredLogger)
	files     = make(map[Category]*os.File)
	loggersMu sync.RWMutex

	opts     Options
	logsDir  string
	minLevel = zapcore.InfoLevel
	optsMu   sync.RWMutex

	nop = zap.NewNop().Sugar()
)

// Initialize sets up the logs directory under the workspace.
// Call once at startup; calling again closes previously opened files.
func Initialize(workspace string, o Options) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	CloseAll()

	optsMu.Lock()
	opts = o
	logsDir = filepath.Join(workspace, ".dashagent", "logs")
	minLevel = parseLevel(o.Level)
	optsMu.Unlock()

	if !o.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Boot("=== dashagent logging initialized ===")
	Boot("Workspace: %s", workspace)
	BootDebug("Log level: %s, json: %v", minLevel, o.JSONFormat)
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether file logging is enabled.
func IsDebugMode() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category writes logs.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category.
// Returns a no-op logger when debug mode or the category is disabled.
func Get(category Category) *zap.SugaredLogger {
	if !IsCategoryEnabled(category) {
		return nop
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	optsMu.RLock()
	dir, level, jsonFormat := logsDir, minLevel, opts.JSONFormat
	optsMu.RUnlock()

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return nop
	}

	var encoder zapcore.Encoder
	if jsonFormat {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), zap.NewAtomicLevelAt(level))
	l := zap.New(core).Named(string(category)).Sugar()

	loggers[category] = l
	files[category] = file
	return l
}

// CloseAll flushes and closes every category log file.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		_ = l.Sync()
		if f := files[cat]; f != nil {
			_ = f.Close()
		}
	}
	loggers = make(map[Category]*zap.SugaredLogger)
	files = make(map[Category]*os.File)
}

// LogsDir returns the directory log files are written to.
func LogsDir() string {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return logsDir
}

// =============================================================================
// Category helpers
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Infof(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debugf(format, args...) }

func Parser(format string, args ...interface{})      { Get(CategoryParser).Infof(format, args...) }
func ParserDebug(format string, args ...interface{}) { Get(CategoryParser).Debugf(format, args...) }
func ParserWarn(format string, args ...interface{})  { Get(CategoryParser).Warnf(format, args...) }

func Executor(format string, args ...interface{})      { Get(CategoryExecutor).Infof(format, args...) }
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debugf(format, args...) }
func ExecutorWarn(format string, args ...interface{})  { Get(CategoryExecutor).Warnf(format, args...) }
func ExecutorError(format string, args ...interface{}) { Get(CategoryExecutor).Errorf(format, args...) }

func Backup(format string, args ...interface{})      { Get(CategoryBackup).Infof(format, args...) }
func BackupDebug(format string, args ...interface{}) { Get(CategoryBackup).Debugf(format, args...) }
func BackupError(format string, args ...interface{}) { Get(CategoryBackup).Errorf(format, args...) }

func Layout(format string, args ...interface{})      { Get(CategoryLayout).Infof(format, args...) }
func LayoutWarn(format string, args ...interface{})  { Get(CategoryLayout).Warnf(format, args...) }
func LayoutDebug(format string, args ...interface{}) { Get(CategoryLayout).Debugf(format, args...) }

func Files(format string, args ...interface{})      { Get(CategoryFiles).Infof(format, args...) }
func FilesDebug(format string, args ...interface{}) { Get(CategoryFiles).Debugf(format, args...) }
func FilesError(format string, args ...interface{}) { Get(CategoryFiles).Errorf(format, args...) }

func Dataset(format string, args ...interface{})      { Get(CategoryDataset).Infof(format, args...) }
func DatasetDebug(format string, args ...interface{}) { Get(CategoryDataset).Debugf(format, args...) }

func Journal(format string, args ...interface{})      { Get(CategoryJournal).Infof(format, args...) }
func JournalDebug(format string, args ...interface{}) { Get(CategoryJournal).Debugf(format, args...) }
func JournalWarn(format string, args ...interface{})  { Get(CategoryJournal).Warnf(format, args...) }

func Watch(format string, args ...interface{})      { Get(CategoryWatch).Infof(format, args...) }
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debugf(format, args...) }
func WatchError(format string, args ...interface{}) { Get(CategoryWatch).Errorf(format, args...) }

func Planner(format string, args ...interface{})      { Get(CategoryPlanner).Infof(format, args...) }
func PlannerDebug(format string, args ...interface{}) { Get(CategoryPlanner).Debugf(format, args...) }

func Shell(format string, args ...interface{})      { Get(CategoryShell).Infof(format, args...) }
func ShellDebug(format string, args ...interface{}) { Get(CategoryShell).Debugf(format, args...) }

// =============================================================================
// Timers
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
