package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/docs"
	"github.com/fatflowers/plankeeper/internal/app/api/handlers"
	mw "github.com/fatflowers/plankeeper/internal/app/api/middleware"
	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/ledger"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/app/service/statistics"
	"github.com/fatflowers/plankeeper/internal/app/service/webhook"
	cfgpkg "github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeParams struct {
	fx.In

	LC       fx.Lifecycle
	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	Catalog  *plancatalog.Service
	Plans    *planstate.Service
	Checker  *entitlement.Service
	Ledger   *ledger.Service
	Webhooks *webhook.Service
	Stats    *statistics.Service
}

func registerRoutes(r *gin.Engine, p routeParams) {
	log := p.Log
	if p.Cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{Logger: log})
		if srv := prom.Use(r, p.Cfg.MetricsAddr); srv != nil {
			p.LC.Append(fx.Hook{OnStop: func(ctx context.Context) error { return srv.Shutdown(ctx) }})
		}
		log.Infow("metrics started", "addr", p.Cfg.MetricsAddr)
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterPublicPlanRoutes(apiV1, p.Catalog)
	handlers.RegisterWebhookRoutes(apiV1, p.Webhooks, log)

	authed := apiV1.Group("/")
	authed.Use(mw.AuthMiddleware(p.Cfg.Auth.JWTSecret))

	admin := authed.Group("/admin")
	admin.Use(mw.AdminOnly())
	handlers.RegisterAdminRoutes(admin, handlers.AdminServices{
		Payments: p.Ledger,
		Webhooks: p.Webhooks,
		Plans:    p.Catalog,
		Stats:    p.Stats,
	}, log)

	handlers.RegisterUserRoutes(authed.Group("/"), p.Plans, p.Checker, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, shutdowner fx.Shutdowner) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "err", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
