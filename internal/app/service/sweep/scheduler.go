package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/lock"
	"github.com/fatflowers/plankeeper/pkg/logctx"
)

const (
	lockExpirySweep    = "sweep:expiry"
	lockExpiryWarnings = "sweep:warnings"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "err", err)...)
}

// Scheduler runs the sweep jobs on cron schedules. Overlapping runs are
// skipped locally and across instances through the locker.
type Scheduler struct {
	cfg    *config.Config
	svc    *Service
	locker lock.Locker
	log    *zap.SugaredLogger
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg *config.Config, svc *Service, locker lock.Locker, log *zap.SugaredLogger) *Scheduler {
	cl := cronLogger{log: log.With("component", "scheduler")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    cfg,
		svc:    svc,
		locker: locker,
		log:    log,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.ExpirySpec, func() {
		s.runLocked(lockExpirySweep, func(ctx context.Context) error {
			_, err := s.svc.RunExpirySweep(ctx)
			return err
		})
	}); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", s.cfg.Scheduler.ExpirySpec, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.WarningSpec, func() {
		s.runLocked(lockExpiryWarnings, func(ctx context.Context) error {
			_, err := s.svc.RunExpiryWarnings(ctx)
			return err
		})
	}); err != nil {
		return fmt.Errorf("invalid warning schedule %q: %w", s.cfg.Scheduler.WarningSpec, err)
	}
	s.cron.Start()
	s.log.Infow("scheduler started", "expiry_spec", s.cfg.Scheduler.ExpirySpec, "warning_spec", s.cfg.Scheduler.WarningSpec)
	return nil
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLocked runs fn only if this instance wins the lease for name.
// It reports whether fn ran.
func (s *Scheduler) runLocked(name string, fn func(ctx context.Context) error) bool {
	log := s.log.With("job", name)
	release, ok, err := s.locker.TryAcquire(s.ctx, name, s.cfg.Scheduler.LockTTL)
	if err != nil {
		log.Errorw("acquire job lock failed", "err", err)
		return false
	}
	if !ok {
		log.Debugw("job held by another instance, skipping")
		return false
	}
	defer release()

	ctx := logctx.WithLogger(s.ctx, log)
	if err := fn(ctx); err != nil {
		log.Errorw("job failed", "err", err)
	}
	return true
}

func registerScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler, log *zap.SugaredLogger) {
	if !cfg.Scheduler.Enabled {
		log.Infow("scheduler disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return s.Start() },
		OnStop:  s.Stop,
	})
}

var Module = fx.Options(
	fx.Provide(NewService, NewScheduler),
	fx.Invoke(registerScheduler),
)
