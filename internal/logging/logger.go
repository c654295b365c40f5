// Package logging provides config-driven categorized file-based logging for remedy.
// Logs are written to .remedy/logs/ with separate files per category.
// Logging is controlled by debug_mode in .remedy/config.yaml - when false, no logs are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and project-root resolution
	CategoryReport   Category = "report"   // Results artifact selection and parsing
	CategoryClassify Category = "classify" // Failure classification decisions
	CategoryPatch    Category = "patch"    // Transformation application
	CategoryLedger   Category = "ledger"   // Attempt ledger reads/writes
	CategoryBackup   Category = "backup"   // Pre-mutation snapshots
	CategoryBuild    Category = "build"    // Configure/build subprocess activity
	CategoryHistory  Category = "history"  // Run summary and history store
	CategoryWatch    Category = "watch"    // Results directory watcher
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// configFile structure for reading .remedy/config.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the project root path.
func Initialize(root string) error {
	if root == "" {
		return fmt.Errorf("project root required")
	}

	workspace = root
	logsDir = filepath.Join(workspace, ".remedy", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create the logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== remedy logging initialized ===")
	boot.Info("Project root: %s", workspace)
	boot.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from .remedy/config.yaml
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".remedy", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Report logs to the report category
func Report(format string, args ...interface{}) {
	Get(CategoryReport).Info(format, args...)
}

// ReportDebug logs debug to the report category
func ReportDebug(format string, args ...interface{}) {
	Get(CategoryReport).Debug(format, args...)
}

// Classify logs to the classify category
func Classify(format string, args ...interface{}) {
	Get(CategoryClassify).Info(format, args...)
}

// ClassifyDebug logs debug to the classify category
func ClassifyDebug(format string, args ...interface{}) {
	Get(CategoryClassify).Debug(format, args...)
}

// Patch logs to the patch category
func Patch(format string, args ...interface{}) {
	Get(CategoryPatch).Info(format, args...)
}

// PatchDebug logs debug to the patch category
func PatchDebug(format string, args ...interface{}) {
	Get(CategoryPatch).Debug(format, args...)
}

// PatchWarn logs warning to the patch category
func PatchWarn(format string, args ...interface{}) {
	Get(CategoryPatch).Warn(format, args...)
}

// PatchError logs error to the patch category
func PatchError(format string, args ...interface{}) {
	Get(CategoryPatch).Error(format, args...)
}

// Ledger logs to the ledger category
func Ledger(format string, args ...interface{}) {
	Get(CategoryLedger).Info(format, args...)
}

// LedgerWarn logs warning to the ledger category
func LedgerWarn(format string, args ...interface{}) {
	Get(CategoryLedger).Warn(format, args...)
}

// Backup logs to the backup category
func Backup(format string, args ...interface{}) {
	Get(CategoryBackup).Info(format, args...)
}

// BackupDebug logs debug to the backup category
func BackupDebug(format string, args ...interface{}) {
	Get(CategoryBackup).Debug(format, args...)
}

// Build logs to the build category
func Build(format string, args ...interface{}) {
	Get(CategoryBuild).Info(format, args...)
}

// BuildDebug logs debug to the build category
func BuildDebug(format string, args ...interface{}) {
	Get(CategoryBuild).Debug(format, args...)
}

// BuildWarn logs warning to the build category
func BuildWarn(format string, args ...interface{}) {
	Get(CategoryBuild).Warn(format, args...)
}

// BuildError logs error to the build category
func BuildError(format string, args ...interface{}) {
	Get(CategoryBuild).Error(format, args...)
}

// History logs to the history category
func History(format string, args ...interface{}) {
	Get(CategoryHistory).Info(format, args...)
}

// HistoryWarn logs warning to the history category
func HistoryWarn(format string, args ...interface{}) {
	Get(CategoryHistory).Warn(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

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

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
