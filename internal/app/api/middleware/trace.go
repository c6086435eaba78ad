package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/tool"
)

const HeaderRequestID = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// TraceMiddleware adds a trace ID to the request context and echoes it in the
// response. A client X-Request-ID is reused when it looks like an id;
// anything else is replaced by a fresh UUIDv7.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderRequestID)
		if !validRequestID.MatchString(traceID) {
			traceID = tool.GenerateUUIDV7()
		}

		c.Set(logctx.KeyTraceID, traceID)
		ctx := context.WithValue(c.Request.Context(), logctx.KeyTraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(HeaderRequestID, traceID)

		c.Next()
	}
}
