// Package observability provides the structured logger used across the
// service. Components depend on small Logger ports; this package is the one
// concrete implementation, backed by logrus.
package observability

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging surface handed to adapters and use cases.
type Logger interface {
	// LogInfo logs an informational message with structured fields.
	LogInfo(ctx context.Context, message string, fields map[string]interface{})

	// LogWarning logs a warning message with structured fields.
	LogWarning(ctx context.Context, message string, fields map[string]interface{})

	// LogError logs an error message with structured fields.
	LogError(ctx context.Context, message string, fields map[string]interface{})

	// WithFields returns a logger that attaches the given fields to every
	// entry, used to correlate all lines of one delivery or job.
	WithFields(fields map[string]interface{}) Logger
}

// LogrusLogger implements Logger on a shared *logrus.Logger.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger builds a logger with the configured level and format.
// Unknown levels fall back to info; unknown formats fall back to JSON.
func NewLogrusLogger(level, format string) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// LogInfo logs an informational message with structured fields.
func (l *LogrusLogger) LogInfo(_ context.Context, message string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Info(message)
}

// LogWarning logs a warning message with structured fields.
func (l *LogrusLogger) LogWarning(_ context.Context, message string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(message)
}

// LogError logs an error message with structured fields.
func (l *LogrusLogger) LogError(_ context.Context, message string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Error(message)
}

// WithFields returns a logger carrying the given fields on every entry.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
