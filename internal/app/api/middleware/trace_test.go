package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fatflowers/plankeeper/pkg/logctx"
)

func TestTraceMiddlewareRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/", func(c *gin.Context) {
		ctxID, _ := c.Request.Context().Value(logctx.KeyTraceID).(string)
		c.String(http.StatusOK, c.GetString("traceID")+"|"+ctxID)
	})

	cases := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"client id reused", "req-42.abc:1", true},
		{"missing", "", false},
		{"too long", strings.Repeat("a", 129), false},
		{"bad chars", "id with spaces", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(HeaderRequestID, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(HeaderRequestID)
			require.NotEmpty(t, got)
			assert.Equal(t, got+"|"+got, w.Body.String())
			if tc.reuse {
				assert.Equal(t, tc.header, got)
			} else {
				assert.NotEqual(t, tc.header, got)
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestAccessLogLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.New(core).Sugar()), AccessLogMiddleware())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/bad", "/boom", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("http_access").AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "unmatched", entries[3].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["trace_id"])
}
