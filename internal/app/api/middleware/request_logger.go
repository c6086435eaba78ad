package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/pkg/logctx"
)

// RequestLoggerMiddleware attaches a request-scoped logger enriched with
// trace_id to gin.Context and the request context. AuthMiddleware adds
// user_id later in the chain.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString(logctx.KeyTraceID)
		reqLogger := base.With("trace_id", traceID)
		c.Set(logctx.KeyLogger, reqLogger)

		ctx := logctx.WithLogger(c.Request.Context(), reqLogger)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
