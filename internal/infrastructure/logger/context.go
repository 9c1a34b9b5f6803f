package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

type scopeKey struct{}

// scope is the request identity every log line of a request carries.
type scope struct {
	requestID     string
	cooperativeID string
	adminID       string
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, update func(*scope)) context.Context {
	s := scopeOf(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithContext stores the base logger used by L.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the stored base logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = requestID })
}

// WithOperation records the cooperative and the acting admin once the
// bearer token has been accepted.
func WithOperation(ctx context.Context, cooperativeID, adminID string) context.Context {
	return withScope(ctx, func(s *scope) {
		s.cooperativeID = cooperativeID
		s.adminID = adminID
	})
}

func GetRequestID(ctx context.Context) string     { return scopeOf(ctx).requestID }
func GetCooperativeID(ctx context.Context) string { return scopeOf(ctx).cooperativeID }
func GetAdminID(ctx context.Context) string       { return scopeOf(ctx).adminID }

// ContextLogger is a zap logger bound to a context. Entries carry the
// trace and span ids of the active span plus request_id, cooperative_id
// and admin_id when they are set.
type ContextLogger struct {
	z *zap.Logger
}

// L binds the logger stored in ctx to ctx.
//
//	logger.L(ctx).Info("invoices generated", zap.Int("count", n))
func L(ctx context.Context) *ContextLogger {
	return WithLogger(ctx, FromContext(ctx))
}

// WithLogger binds base, rather than the stored logger, to ctx.
func WithLogger(ctx context.Context, base *zap.Logger) *ContextLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ContextLogger{z: base.With(contextFields(ctx)...)}
}

func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	s := scopeOf(ctx)
	for _, f := range []struct{ key, value string }{
		{"request_id", s.requestID},
		{"cooperative_id", s.cooperativeID},
		{"admin_id", s.adminID},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	return fields
}

func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{z: cl.z.With(fields...)}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.z.Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.z.Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.z.Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.z.Error(msg, fields...) }
