package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/idempotency/domain"
	"github.com/smallbiznis/paydesk/internal/idempotency/repository"
	"github.com/smallbiznis/paydesk/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, wait time.Duration) (domain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  repository.Provide(),
		Config: config.Config{Idempotency: config.IdempotencyConfig{
			Lease:     time.Minute,
			Retention: 24 * time.Hour,
			Wait:      wait,
		}},
	})
	return svc, clk
}

func TestGetOrReserve(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "order-42", Fingerprint: "fp-a", TransactionID: snowflake.ID(1001)}

	first, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Reserved)
	require.False(t, first.Reclaimed)
	require.Equal(t, domain.StatusInProgress, first.Record.Status)

	_, err = svc.GetOrReserve(ctx, req)
	require.ErrorIs(t, err, domain.ErrInProgress)

	require.NoError(t, svc.Complete(ctx, nil, req.Key, domain.Outcome{
		TransactionID: req.TransactionID,
		ExternalRef:   "pi_1",
		ClientSecret:  "pi_1_secret",
	}))

	// A retry with a different preassigned id still replays the first outcome.
	replay, err := svc.GetOrReserve(ctx, domain.ReserveRequest{Key: req.Key, Fingerprint: "fp-a", TransactionID: snowflake.ID(2002)})
	require.NoError(t, err)
	require.False(t, replay.Reserved)
	require.Equal(t, snowflake.ID(1001), replay.Record.TransactionID)
	require.Equal(t, "pi_1", replay.Record.ExternalRef)
	require.Equal(t, "pi_1_secret", replay.Record.ClientSecret)
}

func TestGetOrReserveRejectsReusedKey(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.GetOrReserve(ctx, domain.ReserveRequest{Key: "k1", Fingerprint: "fp-a", TransactionID: 1})
	require.NoError(t, err)

	_, err = svc.GetOrReserve(ctx, domain.ReserveRequest{Key: "k1", Fingerprint: "fp-b", TransactionID: 2})
	require.ErrorIs(t, err, domain.ErrKeyReused)
}

func TestGetOrReserveValidatesKey(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.GetOrReserve(ctx, domain.ReserveRequest{Key: "  ", Fingerprint: "fp", TransactionID: 1})
	require.ErrorIs(t, err, domain.ErrInvalidKey)

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'k'
	}
	_, err = svc.GetOrReserve(ctx, domain.ReserveRequest{Key: string(long), Fingerprint: "fp", TransactionID: 1})
	require.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	svc, clk := newTestService(t, 0)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "k-lease", Fingerprint: "fp", TransactionID: 7}

	_, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	res, err := svc.GetOrReserve(ctx, domain.ReserveRequest{Key: "k-lease", Fingerprint: "fp", TransactionID: 8})
	require.NoError(t, err)
	require.True(t, res.Reserved)
	require.True(t, res.Reclaimed)
	require.Equal(t, 2, res.Record.Attempt)
	// The original binding survives so the pending row is reused.
	require.Equal(t, snowflake.ID(7), res.Record.TransactionID)
}

func TestRetryableRecordIsTakenOver(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "k-retry", Fingerprint: "fp", TransactionID: 9}

	_, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRetryable(ctx, req.Key))

	res, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Reserved)
	require.True(t, res.Reclaimed)
}

func TestReleaseFreesKey(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "k-release", Fingerprint: "fp", TransactionID: 10}

	_, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, req.Key))

	res, err := svc.GetOrReserve(ctx, domain.ReserveRequest{Key: req.Key, Fingerprint: "fp-other", TransactionID: 11})
	require.NoError(t, err)
	require.True(t, res.Reserved)
	require.False(t, res.Reclaimed)
}

func TestCompleteIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "k-done", Fingerprint: "fp", TransactionID: 12}

	_, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)

	outcome := domain.Outcome{TransactionID: 12, ExternalRef: "pi_12"}
	require.NoError(t, svc.Complete(ctx, nil, req.Key, outcome))
	require.NoError(t, svc.Complete(ctx, nil, req.Key, outcome))
	require.ErrorIs(t, svc.Complete(ctx, nil, req.Key, domain.Outcome{TransactionID: 99}), domain.ErrKeyReused)
	require.ErrorIs(t, svc.Complete(ctx, nil, "missing", outcome), domain.ErrNotFound)

	// Completed records are not released.
	require.NoError(t, svc.Release(ctx, req.Key))
	res, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Reserved)
}

func TestAwaitReturnsOwnersOutcome(t *testing.T) {
	svc, _ := newTestService(t, 2*time.Second)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "k-await", Fingerprint: "fp", TransactionID: 13}

	owner, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)
	require.True(t, owner.Reserved)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(120 * time.Millisecond)
		_ = svc.Complete(ctx, nil, req.Key, domain.Outcome{TransactionID: 13, ExternalRef: "pi_13"})
	}()

	res, err := svc.Await(ctx, domain.ReserveRequest{Key: req.Key, Fingerprint: "fp", TransactionID: 14})
	<-done
	require.NoError(t, err)
	require.False(t, res.Reserved)
	require.Equal(t, "pi_13", res.Record.ExternalRef)
	require.Equal(t, snowflake.ID(13), res.Record.TransactionID)
}

func TestAwaitGivesUpAfterWait(t *testing.T) {
	svc, _ := newTestService(t, 100*time.Millisecond)
	ctx := context.Background()
	req := domain.ReserveRequest{Key: "k-slow", Fingerprint: "fp", TransactionID: 15}

	_, err := svc.GetOrReserve(ctx, req)
	require.NoError(t, err)

	_, err = svc.Await(ctx, req)
	require.ErrorIs(t, err, domain.ErrInProgress)
}

func TestPurgeRemovesOldCompletedRecords(t *testing.T) {
	svc, clk := newTestService(t, 0)
	ctx := context.Background()

	old := domain.ReserveRequest{Key: "k-old", Fingerprint: "fp", TransactionID: 16}
	_, err := svc.GetOrReserve(ctx, old)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, nil, old.Key, domain.Outcome{TransactionID: 16}))

	clk.Advance(25 * time.Hour)

	fresh := domain.ReserveRequest{Key: "k-fresh", Fingerprint: "fp", TransactionID: 17}
	_, err = svc.GetOrReserve(ctx, fresh)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, nil, fresh.Key, domain.Outcome{TransactionID: 17}))

	purged, err := svc.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	res, err := svc.GetOrReserve(ctx, fresh)
	require.NoError(t, err)
	require.False(t, res.Reserved)

	res, err = svc.GetOrReserve(ctx, old)
	require.NoError(t, err)
	require.True(t, res.Reserved)
}
