// Package logging wraps zap into an ambient, context-carried logger: tool
// handlers and background loops pull a request/session-scoped logger out of
// context.Context rather than threading one through every call.
package logging

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// New builds the process-wide base logger from LOG_LEVEL, emitting to
// stderr as the teacher/pack convention for a CLI-launched MCP server.
func New(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		lvl,
	)

	return zap.New(core, zap.AddCaller()).Sugar()
}

// WithContext attaches a logger (already annotated with request/session
// fields) to ctx for downstream retrieval.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the ambient logger, falling back to a disabled no-op
// logger if none was attached (never nil).
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return zap.NewNop().Sugar()
}

// WithFields returns ctx with the ambient logger enriched by key/value pairs
// (e.g. "request_id", id, "session_id", sid).
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	return WithContext(ctx, FromContext(ctx).With(kv...))
}
