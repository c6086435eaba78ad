package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/pkg/logctx"
)

// AccessLogMiddleware logs one line per request using the request-scoped
// logger attached by RequestLoggerMiddleware. Server errors log at error
// level, client errors at warn.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l, ok := c.Get(logctx.KeyLogger)
		if !ok {
			return
		}
		log, ok := l.(*zap.SugaredLogger)
		if !ok || log == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if uid := UserID(c); uid != "" {
			fields = append(fields, "user_id", uid)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Errorw("http_access", fields...)
		case status >= http.StatusBadRequest:
			log.Warnw("http_access", fields...)
		default:
			log.Infow("http_access", fields...)
		}
	}
}
