package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with redaction and request ID support.
type Logger struct {
	*slog.Logger
	redactor *Redactor
}

// LoggerConfig controls the process logger.
type LoggerConfig struct {
	Level      slog.Level
	Output     io.Writer
	AddSource  bool
	JSONFormat bool

	// File enables rotating file output alongside Output. Empty disables.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger creates a logger with redaction support. A configured File adds
// size-rotated output next to the primary writer.
func NewLogger(cfg LoggerConfig, redactor *Redactor) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotated)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		Logger:   slog.New(handler),
		redactor: redactor,
	}
}

// WithRequestID returns a logger carrying the request ID from context.
func (l *Logger) WithRequestID(ctx context.Context) *Logger {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		return l
	}
	return &Logger{
		Logger:   l.Logger.With("request_id", requestID),
		redactor: l.redactor,
	}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{
		Logger:   l.Logger.With(args...),
		redactor: l.redactor,
	}
}

// RedactedInfo logs at INFO level after masking secrets in message and args.
func (l *Logger) RedactedInfo(msg string, args ...any) {
	l.Logger.Info(l.redactMsg(msg), l.redactArgs(args)...)
}

// RedactedWarn logs at WARN level after masking secrets.
func (l *Logger) RedactedWarn(msg string, args ...any) {
	l.Logger.Warn(l.redactMsg(msg), l.redactArgs(args)...)
}

// RedactedError logs at ERROR level after masking secrets.
func (l *Logger) RedactedError(msg string, args ...any) {
	l.Logger.Error(l.redactMsg(msg), l.redactArgs(args)...)
}

// RedactedDebug logs at DEBUG level after masking secrets.
func (l *Logger) RedactedDebug(msg string, args ...any) {
	l.Logger.Debug(l.redactMsg(msg), l.redactArgs(args)...)
}

func (l *Logger) redactMsg(msg string) string {
	if l.redactor == nil {
		return msg
	}
	return l.redactor.Redact(msg)
}

func (l *Logger) redactArgs(args []any) []any {
	if l.redactor == nil {
		return args
	}
	out := make([]any, len(args))
	for i, arg := range args {
		if s, ok := arg.(string); ok && i%2 == 1 {
			// Only redact values; keys are attribute names.
			out[i] = l.redactor.Redact(s)
			continue
		}
		out[i] = arg
	}
	return out
}
