// Package logger provides the structured logging contract for the invoicer service.
// The production implementation is zap based and lives in internal/infrastructure/monitoring.
package logger

import (
	"context"
	"strings"
	"time"
)

// Fields is a set of structured key-value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, msg string, fields ...Fields)

	// Info logs an informational message
	Info(ctx context.Context, msg string, fields ...Fields)

	// Warn logs a warning message
	Warn(ctx context.Context, msg string, fields ...Fields)

	// Error logs an error message
	Error(ctx context.Context, msg string, err error, fields ...Fields)

	// Fatal logs a fatal message and exits the application
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields creates a new logger with additional fields
	WithFields(fields Fields) Logger

	// ForContext returns the request scoped logger stored in ctx, if any
	ForContext(ctx context.Context) Logger
}

// String creates a string field
func String(key string, value string) Fields {
	return Fields{key: value}
}

// Int creates an integer field
func Int(key string, value int) Fields {
	return Fields{key: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Fields {
	return Fields{key: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Fields {
	return Fields{key: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Fields {
	return Fields{key: value.String()}
}

// Any creates a field with any type
func Any(key string, value interface{}) Fields {
	return Fields{key: value}
}

// Err creates an error field
func Err(err error) Fields {
	if err == nil {
		return Fields{"error": nil}
	}
	return Fields{"error": err.Error()}
}

var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"signature",
	"app_key",
	"authorization",
	"cookie",
}

// Sanitize masks values whose key names suggest credentials.
func Sanitize(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(keyLower, sensitiveKey) {
			if str, ok := value.(string); ok && len(str) > 8 {
				return str[:4] + "***" + str[len(str)-4:]
			}
			return "***REDACTED***"
		}
	}
	return value
}
