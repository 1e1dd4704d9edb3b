package gandewa

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the minimal structured logging interface the client emits
// debug output through. Key-value pairs alternate key, value.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger is a plain console logger for development use.
type SimpleLogger struct{}

// NewSimpleLogger returns a logger writing formatted lines to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{}
}

func (l *SimpleLogger) log(level, msg string, keysAndValues ...any) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	fmt.Fprintln(os.Stderr, b.String())
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues...) }
func (l *SimpleLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues...) }
func (l *SimpleLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues...) }
func (l *SimpleLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues...) }

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

func (l *ZerologLogger) emit(event *zerolog.Event, msg string, keysAndValues ...any) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		event = event.Interface(key, keysAndValues[i+1])
	}
	event.Msg(msg)
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	l.emit(l.logger.Debug(), msg, keysAndValues...)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...any) {
	l.emit(l.logger.Info(), msg, keysAndValues...)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	l.emit(l.logger.Warn(), msg, keysAndValues...)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...any) {
	l.emit(l.logger.Error(), msg, keysAndValues...)
}

// DebugConfig gates per-concern debug logging so insight can be enabled
// selectively without noise.
type DebugConfig struct {
	Enabled          bool
	LogCalls         bool
	LogRetries       bool
	LogCircuit       bool
	LogRateLimit     bool
	LogSubscriptions bool
	LogBatch         bool

	// RequestIDGen produces the correlation id attached to call logs.
	RequestIDGen func() string
}

// DefaultDebugConfig enables every concern with uuid request ids.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:          false,
		LogCalls:         true,
		LogRetries:       true,
		LogCircuit:       true,
		LogRateLimit:     true,
		LogSubscriptions: true,
		LogBatch:         true,
		RequestIDGen:     func() string { return uuid.NewString()[:8] },
	}
}
