// Package logging provides categorized zap-backed logging for stagehand.
// Each subsystem logs through its own named logger so log output can be
// filtered per category, and verbosity is controlled globally at startup.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and configuration
	CategoryWorkflow   Category = "workflow"   // Orchestrator loop, stage transitions
	CategoryHandoff    Category = "handoff"    // Handoff validation and routing
	CategoryQuality    Category = "quality"    // Quality gate evaluation
	CategoryResilience Category = "resilience" // Breakers, retries, recovery
	CategoryUnits      Category = "units"      // Capability unit execution
	CategoryGeneration Category = "generation" // Generation client calls
	CategoryStore      Category = "store"      // Checkpoint and context store
	CategoryConfig     Category = "config"     // Config load and hot reload
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize installs the process-wide root logger. debug selects the
// development config with debug-level output; production config otherwise.
// Safe to call more than once; the last call wins.
func Initialize(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// SetLogger replaces the root logger. Used by tests to install zaptest
// loggers or a nop logger.
func SetLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Get returns the sugared logger for a category, creating it on first use.
// Before Initialize the returned logger is a no-op.
func Get(category Category) *zap.SugaredLogger {
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
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	l := base.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Convenience functions. These are the common call sites; packages that need
// structured fields use Get(category).Infow(...) directly.

// Workflow logs to the workflow category.
func Workflow(format string, args ...interface{}) {
	Get(CategoryWorkflow).Infof(format, args...)
}

// WorkflowDebug logs debug to the workflow category.
func WorkflowDebug(format string, args ...interface{}) {
	Get(CategoryWorkflow).Debugf(format, args...)
}

// Handoff logs to the handoff category.
func Handoff(format string, args ...interface{}) {
	Get(CategoryHandoff).Infof(format, args...)
}

// HandoffDebug logs debug to the handoff category.
func HandoffDebug(format string, args ...interface{}) {
	Get(CategoryHandoff).Debugf(format, args...)
}

// Quality logs to the quality category.
func Quality(format string, args ...interface{}) {
	Get(CategoryQuality).Infof(format, args...)
}

// QualityDebug logs debug to the quality category.
func QualityDebug(format string, args ...interface{}) {
	Get(CategoryQuality).Debugf(format, args...)
}

// Resilience logs to the resilience category.
func Resilience(format string, args ...interface{}) {
	Get(CategoryResilience).Infof(format, args...)
}

// ResilienceDebug logs debug to the resilience category.
func ResilienceDebug(format string, args ...interface{}) {
	Get(CategoryResilience).Debugf(format, args...)
}

// Units logs to the units category.
func Units(format string, args ...interface{}) {
	Get(CategoryUnits).Infof(format, args...)
}

// UnitsDebug logs debug to the units category.
func UnitsDebug(format string, args ...interface{}) {
	Get(CategoryUnits).Debugf(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Infof(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debugf(format, args...)
}

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
