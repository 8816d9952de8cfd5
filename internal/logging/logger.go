package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger writes leveled key-value log lines for one worker component.
// Debug lines are suppressed unless LOG_DEBUG is set, so the per-request
// OCR and LLM chatter stays out of production logs.
type Logger struct {
	prefix string
	jobID  string
	debug  bool
	logger *log.Logger
}

// NewLogger creates a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{
		prefix: component,
		debug:  os.Getenv("LOG_DEBUG") != "",
		logger: log.New(os.Stdout, fmt.Sprintf("[%s] ", component), log.LstdFlags),
	}
}

// WithJob returns a child logger that stamps every line with the job ID.
func (l *Logger) WithJob(jobID string) *Logger {
	child := *l
	child.jobID = jobID
	return &child
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV("INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV("WARN", msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV("ERROR", msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	if !l.debug {
		return
	}
	l.logWithKV("DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	if l.jobID != "" {
		fmt.Fprintf(&b, " job=%s", l.jobID)
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Printf("[%s] %s%s", level, msg, b.String())
}
