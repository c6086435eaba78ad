package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/plankeeper/internal/app/api/server"
	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/ledger"
	"github.com/fatflowers/plankeeper/internal/app/service/notification"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/app/service/statistics"
	"github.com/fatflowers/plankeeper/internal/app/service/sweep"
	"github.com/fatflowers/plankeeper/internal/app/service/webhook"
	"github.com/fatflowers/plankeeper/internal/platform/db"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/internal/platform/gateway/razorpay"
	"github.com/fatflowers/plankeeper/internal/platform/gateway/stripe"
	"github.com/fatflowers/plankeeper/internal/platform/redis"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/logger"
	"github.com/fatflowers/plankeeper/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	config.Module,
	logger.Module,
	clock.Module,
	metrics.Module,
	db.Module,
	redis.Module,
	gateway.Module,
	razorpay.Module,
	stripe.Module,
	plancatalog.Module,
	entitlement.Module,
	notification.Module,
	ledger.Module,
	planstate.Module,
	webhook.Module,
	sweep.Module,
	statistics.Module,
	server.Module,
)
