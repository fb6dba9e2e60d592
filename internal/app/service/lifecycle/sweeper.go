package lifecycle

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/internal/app/service/subscription"
	cfgpkg "github.com/transitops/fareflow/pkg/config"
)

// Sweeper periodically applies the time-driven transitions: overdue
// active or paused subscriptions expire, and pending subscriptions that
// never paid get cancelled after a grace period.
type Sweeper struct {
	mgr           *subscription.Manager
	interval      time.Duration
	pendingMaxAge time.Duration
	log           *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(mgr *subscription.Manager, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		mgr:           mgr,
		interval:      cfg.Sweeper.Interval(),
		pendingMaxAge: time.Duration(cfg.Sweeper.PendingMaxAgeDays) * 24 * time.Hour,
		log:           log,
	}
}

// RunOnce performs a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) {
	if _, err := s.mgr.ExpireDueSubscriptions(ctx, now); err != nil {
		s.log.Errorw("expiration sweep failed", "err", err)
	}
	if _, err := s.mgr.CancelAbandonedPending(ctx, now, s.pendingMaxAge); err != nil {
		s.log.Errorw("abandoned pending sweep failed", "err", err)
	}
}

func (s *Sweeper) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx, time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.RunOnce(ctx, now)
			}
		}
	}()
}

func (s *Sweeper) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func register(lc fx.Lifecycle, s *Sweeper, cfg *cfgpkg.Config, log *zap.SugaredLogger) {
	if !cfg.Sweeper.Enabled {
		log.Infow("lifecycle sweeper disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting lifecycle sweeper", "interval", s.interval.String())
			s.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping lifecycle sweeper")
			s.stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewSweeper),
	fx.Invoke(register),
)
