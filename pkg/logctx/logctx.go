package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Keys shared by gin.Context and context.Context.
const (
	KeyLogger  = "logger"
	KeyTraceID = "traceID"
	KeyUserID  = "user_id"
)

// WithLogger stores l in ctx for FromCtx.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, KeyLogger, l)
}

// UserID returns the authenticated user id carried by ctx, if any.
func UserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	uid, _ := ctx.Value(KeyUserID).(string)
	return uid
}

// FromGin returns the request-scoped logger from c, falling back to
// ctx-based enrichment of base.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if lg, ok := c.Value(KeyLogger).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	if c.Request == nil {
		return base
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns the logger stored in ctx, or base enriched with whatever
// trace and user ids ctx carries. Background jobs have neither and get base.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(KeyLogger).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid, ok := ctx.Value(KeyTraceID).(string); ok && tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if uid := UserID(ctx); uid != "" {
		fields = append(fields, "user_id", uid)
	}
	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}
