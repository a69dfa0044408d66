package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/verigate/verigate/internal/clock"
	"github.com/verigate/verigate/internal/config"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	"github.com/verigate/verigate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler requires ledger service, clock and logger")

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Clock   clock.Clock
	Ledger  ledgerdomain.Service
	Limiter *ratelimit.LookupLimiter `optional:"true"`
}

// Scheduler runs the reservation reconciliation loop: pending reservations
// older than the TTL belong to crashed or abandoned invocations and are
// released back to the officer's balance.
type Scheduler struct {
	log     *zap.Logger
	cfg     config.Config
	clock   clock.Clock
	ledger  ledgerdomain.Service
	limiter *ratelimit.LookupLimiter
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Ledger == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config,
		clock:   p.Clock,
		ledger:  p.Ledger,
		limiter: p.Limiter,
	}, nil
}

// SweepOnce runs one reconciliation pass and returns how many reservations
// were released.
func (s *Scheduler) SweepOnce(ctx context.Context) (int, error) {
	lockToken, acquired, err := s.limiter.AcquireSweepLock(ctx, s.cfg.SweepInterval)
	if err != nil {
		s.log.Warn("sweep lock unavailable, continuing unguarded", zap.Error(err))
	} else if !acquired {
		return 0, nil
	} else if lockToken != "" {
		defer func() {
			if err := s.limiter.ReleaseSweepLock(ctx, lockToken); err != nil {
				s.log.Warn("release sweep lock", zap.Error(err))
			}
		}()
	}

	cutoff := s.clock.Now().Add(-s.cfg.ReservationTTL)
	released, err := s.ledger.SweepExpiredReservations(ctx, cutoff)
	if err != nil {
		return released, err
	}
	if released > 0 {
		s.log.Info("reservation sweep completed",
			zap.Int("released", released),
			zap.Time("cutoff", cutoff),
		)
	}
	return released, nil
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("reservation sweep failed", zap.Error(err))
			}
		}
	}
}

func registerHooks(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// Module provides the background reconciliation loop.
var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
