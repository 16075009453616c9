package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/roomieai/concierge-go/pkg/core"
)

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

type ctxKey int

const (
	clientIDKey ctxKey = iota
	turnIDKey
)

// WithClientID attaches a client identity to the context so log entries
// emitted during a turn carry it automatically.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// WithTurnID attaches a persisted turn id to the context.
func WithTurnID(ctx context.Context, turnID int64) context.Context {
	return context.WithValue(ctx, turnIDKey, turnID)
}

// Logger provides the core logging functionality.
type Logger struct {
	mu       sync.Mutex
	severity Severity
	outputs  []Output
	fields   map[string]interface{} // Default fields for all logs
}

// Output interface allows for different logging destinations.
type Output interface {
	Write(LogEntry) error
	Sync() error
	Close() error
}

// Config allows flexible logger configuration.
type Config struct {
	Severity      Severity
	Outputs       []Output
	DefaultFields map[string]interface{}
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg Config) *Logger {
	return &Logger{
		severity: cfg.Severity,
		outputs:  cfg.Outputs,
		fields:   cfg.DefaultFields,
	}
}

// logf is the core logging function that handles all severity levels.
func (l *Logger) logf(ctx context.Context, s Severity, format string, args ...interface{}) {
	l.emit(ctx, s, 3, 0, nil, format, args...)
}

// emit builds and writes a LogEntry. callerSkip is the runtime.Caller depth
// to the frame that should be reported as the log site.
func (l *Logger) emit(ctx context.Context, s Severity, callerSkip int, latencyMs int64, tokenInfo *core.TokenInfo, format string, args ...interface{}) {
	// Early severity check for performance
	if s < l.severity {
		return
	}

	// Get caller information
	pc, file, line, _ := runtime.Caller(callerSkip)
	fn := runtime.FuncForPC(pc).Name()

	entry := LogEntry{
		Time:      time.Now().UnixNano(),
		Severity:  s,
		Message:   fmt.Sprintf(format, args...),
		File:      filepath.Base(file),
		Line:      line,
		Function:  filepath.Base(fn),
		TokenInfo: tokenInfo,
		Latency:   latencyMs,
		Fields:    make(map[string]interface{}),
	}

	// Add context values if present
	if ctx != nil {
		if clientID, ok := ctx.Value(clientIDKey).(string); ok {
			entry.ClientID = clientID
		}
		if turnID, ok := ctx.Value(turnIDKey).(int64); ok {
			entry.TurnID = turnID
		}
	}

	// Add default fields
	for k, v := range l.fields {
		if _, exists := entry.Fields[k]; !exists {
			entry.Fields[k] = v
		}
	}

	// Write to all outputs
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, out := range l.outputs {
		if err := out.Write(entry); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
		}
	}
}

// TurnCompleted records the outcome of a generated turn, carrying the
// wall-clock latency and token usage as structured entry fields.
func (l *Logger) TurnCompleted(ctx context.Context, latencyMs int64, tokenInfo *core.TokenInfo) {
	l.emit(ctx, DEBUG, 2, latencyMs, tokenInfo, "turn completed: latency_ms: %d, token_info: %v", latencyMs, tokenInfo)
}

// Regular severity-based logging methods.
func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, DEBUG, format, args...)
}

func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, INFO, format, args...)
}

func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, WARN, format, args...)
}

func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, ERROR, format, args...)
}

// GetLogger returns the global logger instance.
func GetLogger() *Logger {
	// First try reading without a write lock
	mu.RLock()
	if l := defaultLogger; l != nil {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	// If no logger exists, create one with write lock
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger == nil {
		// Create default logger with reasonable defaults
		defaultLogger = NewLogger(Config{
			Severity: INFO,
			Outputs: []Output{
				NewConsoleOutput(false),
			},
		})
	}

	return defaultLogger
}

// SetLogger allows setting a custom configured logger as the global instance.
func SetLogger(l *Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}
