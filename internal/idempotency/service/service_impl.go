package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/idempotency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxKeyLength = 255
	pollInterval = 50 * time.Millisecond
	// reserveAttempts bounds re-reads when a record changes underneath us.
	reserveAttempts = 4
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Config config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	cfg   config.IdempotencyConfig
}

func NewService(p Params) domain.Service {
	cfg := p.Config.Idempotency
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("idempotency.service"),
		clock: p.Clock,
		repo:  p.Repo,
		cfg:   cfg,
	}
}

func (s *Service) GetOrReserve(ctx context.Context, req domain.ReserveRequest) (domain.Reservation, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" || len(key) > maxKeyLength || req.TransactionID == 0 {
		return domain.Reservation{}, domain.ErrInvalidKey
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		now := s.clock.Now()
		record := domain.Record{
			Key:            key,
			Fingerprint:    req.Fingerprint,
			Status:         domain.StatusInProgress,
			TransactionID:  req.TransactionID,
			Attempt:        1,
			LeaseExpiresAt: now.Add(s.cfg.Lease),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		inserted, err := s.repo.InsertIfAbsent(ctx, s.db, &record)
		if err != nil {
			return domain.Reservation{}, err
		}
		if inserted {
			return domain.Reservation{Reserved: true, Record: record}, nil
		}

		existing, err := s.repo.FindByKey(ctx, s.db, key)
		if err != nil {
			return domain.Reservation{}, err
		}
		if existing == nil {
			// Released between our insert and read.
			continue
		}
		if existing.Fingerprint != req.Fingerprint {
			return domain.Reservation{}, domain.ErrKeyReused
		}

		switch existing.Status {
		case domain.StatusCompleted:
			return domain.Reservation{Record: *existing}, nil
		case domain.StatusInProgress:
			if now.Before(existing.LeaseExpiresAt) {
				return domain.Reservation{}, domain.ErrInProgress
			}
			s.log.Warn("reclaiming expired idempotency lease",
				zap.String("idempotency_key", key),
				zap.String("transaction_id", existing.TransactionID.String()),
				zap.Int("attempt", existing.Attempt),
			)
		}

		lease := now.Add(s.cfg.Lease)
		reclaimed, err := s.repo.Reclaim(ctx, s.db, key, existing.Attempt, lease, now)
		if err != nil {
			return domain.Reservation{}, err
		}
		if !reclaimed {
			continue
		}
		existing.Status = domain.StatusInProgress
		existing.Attempt++
		existing.LeaseExpiresAt = lease
		existing.UpdatedAt = now
		return domain.Reservation{Reserved: true, Reclaimed: true, Record: *existing}, nil
	}
	return domain.Reservation{}, domain.ErrInProgress
}

func (s *Service) Await(ctx context.Context, req domain.ReserveRequest) (domain.Reservation, error) {
	res, err := s.GetOrReserve(ctx, req)
	if !errors.Is(err, domain.ErrInProgress) || s.cfg.Wait <= 0 {
		return res, err
	}

	deadline := time.NewTimer(s.cfg.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.Reservation{}, ctx.Err()
		case <-deadline.C:
			return domain.Reservation{}, domain.ErrInProgress
		case <-ticker.C:
		}

		res, err = s.GetOrReserve(ctx, req)
		if !errors.Is(err, domain.ErrInProgress) {
			return res, err
		}
	}
}

func (s *Service) Complete(ctx context.Context, db *gorm.DB, key string, outcome domain.Outcome) error {
	if db == nil {
		db = s.db
	}
	completed, err := s.repo.Complete(ctx, db, key, outcome, s.clock.Now())
	if err != nil {
		return err
	}
	if completed {
		return nil
	}

	existing, err := s.repo.FindByKey(ctx, db, key)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	if existing.Status == domain.StatusCompleted && existing.TransactionID == outcome.TransactionID {
		return nil
	}
	return domain.ErrKeyReused
}

func (s *Service) MarkRetryable(ctx context.Context, key string) error {
	_, err := s.repo.MarkRetryable(ctx, s.db, key, s.clock.Now())
	return err
}

func (s *Service) Release(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, s.db, key)
}

func (s *Service) Purge(ctx context.Context) (int64, error) {
	before := s.clock.Now().Add(-s.cfg.Retention)
	purged, err := s.repo.PurgeCompletedBefore(ctx, s.db, before)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Info("purged idempotency records", zap.Int64("count", purged), zap.Time("before", before))
	}
	return purged, nil
}
