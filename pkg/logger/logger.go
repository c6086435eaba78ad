package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fatflowers/plankeeper/pkg/config"
)

// New builds the process logger. Prod logs JSON at info; dev logs
// console-encoded at debug.
func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	if !cfg.IsProd() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.TimeKey = "time"
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().With("service", "plankeeper", "env", cfg.Env), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
