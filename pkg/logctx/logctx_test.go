package logctx

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCtx(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	FromCtx(context.Background(), base).Info("plain")
	ctx := context.WithValue(context.Background(), KeyTraceID, "t1")
	ctx = context.WithValue(ctx, KeyUserID, "u1")
	FromCtx(ctx, base).Info("enriched")

	stored := base.With("scope", "request")
	FromCtx(WithLogger(ctx, stored), base).Info("stored")

	entries := logs.AllUntimed()
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{"trace_id": "t1", "user_id": "u1"}, entries[1].ContextMap())
	assert.Equal(t, map[string]interface{}{"scope": "request"}, entries[2].ContextMap())
	assert.Equal(t, "u1", UserID(ctx))
}

func TestFromGin(t *testing.T) {
	base := zap.NewNop().Sugar()
	assert.Same(t, base, FromGin(nil, base))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	assert.Same(t, base, FromGin(c, base))

	scoped := base.With("trace_id", "t1")
	c.Set(KeyLogger, scoped)
	assert.Same(t, scoped, FromGin(c, base))
}
