package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/paydesk/internal/clock"
	idempotencydomain "github.com/smallbiznis/paydesk/internal/idempotency/domain"
	"github.com/smallbiznis/paydesk/internal/ratelimit"
	"github.com/smallbiznis/paydesk/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobPurgeIdempotency  = "purge_idempotency"
	lockPurgeIdempotency = "paydesk:scheduler:" + jobPurgeIdempotency
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Idempotency idempotencydomain.Service
	Locker      *ratelimit.Locker `optional:"true"`
	Config      Config            `optional:"true"`
}

// Scheduler runs housekeeping jobs on a fixed interval. When a Locker is
// available only one replica runs a given job per interval.
type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	idempotency idempotencydomain.Service
	locker      *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Idempotency == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		idempotency: p.Idempotency,
		locker:      p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobPurgeIdempotency, lockPurgeIdempotency, s.purgeIdempotency)
}

func (s *Scheduler) runJob(parent context.Context, name, lockKey string, fn func(ctx context.Context) (int64, error)) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := s.log.With(zap.String("job", name), zap.String("run_id", runID))

	token, owner, err := s.locker.TryLock(ctx, lockKey, s.cfg.PurgeInterval)
	if err != nil {
		return err
	}
	if !owner {
		log.Debug("job owned by another instance")
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn("job lock release failed", zap.Error(err))
		}
	}()

	start := s.clock.Now()
	processed, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout))
		}
		return err
	}
	log.Info("job finished",
		zap.Int64("processed", processed),
		zap.Duration("duration", duration),
	)
	return nil
}

func (s *Scheduler) purgeIdempotency(ctx context.Context) (int64, error) {
	return s.idempotency.Purge(ctx)
}
