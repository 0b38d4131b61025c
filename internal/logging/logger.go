// Package logging provides structured logging with episode/pattern context
// propagation.
//
// Adapted from the teacher's infrastructure/logging package (a thin
// logrus.Logger wrapper keyed by context values); the teacher's
// UserIDKey/RoleKey context keys have no equivalent here and are replaced
// with EpisodeIDKey/PatternIDKey, the identifiers this engine's operations
// actually thread through context.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carrying log fields.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	EpisodeIDKey ContextKey = "episode_id"
	PatternIDKey ContextKey = "pattern_id"
)

// Logger wraps logrus.Logger with a fixed service name and context-aware
// field extraction.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger with explicit level and format ("json" or "text").
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry carrying the service name plus any trace,
// episode, or pattern id found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(EpisodeIDKey); v != nil {
		entry = entry.WithField("episode_id", v)
	}
	if v := ctx.Value(PatternIDKey); v != nil {
		entry = entry.WithField("pattern_id", v)
	}
	return entry
}

// WithError returns an entry carrying the service name and error message.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// WithFields returns an entry carrying the service name plus fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// NewTraceID generates a new trace identifier.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID attaches a trace id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithEpisodeID attaches an episode id to ctx.
func WithEpisodeID(ctx context.Context, episodeID string) context.Context {
	return context.WithValue(ctx, EpisodeIDKey, episodeID)
}

// GetTraceID retrieves the trace id from ctx, if present.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}
