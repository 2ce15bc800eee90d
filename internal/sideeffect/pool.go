package sideeffect

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/config"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/smallbiznis/paydesk/internal/notification"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	receiptdomain "github.com/smallbiznis/paydesk/internal/receipt/domain"
	"github.com/smallbiznis/paydesk/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

type Params struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	Receipts    receiptdomain.Service
	Notifier    notification.Notifier
	ObsMetrics  *obsmetrics.Metrics     `optional:"true"`
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

type job struct {
	ctx  context.Context
	kind string
	run  func(ctx context.Context) error
}

// Pool runs side effects on a fixed set of workers fed by a bounded queue.
// Enqueueing never blocks: when the queue is full the job is dropped and
// counted.
type Pool struct {
	log         *zap.Logger
	receipts    receiptdomain.Service
	notifier    notification.Notifier
	business    string
	workers     int
	obsMetrics  *obsmetrics.Metrics
	httpMetrics *obsmetrics.HTTPMetrics

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

func NewPool(p Params) *Pool {
	workers := p.Config.SideEffects.Workers
	if workers <= 0 {
		workers = 4
	}
	size := p.Config.SideEffects.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Pool{
		log:         p.Log.Named("sideeffect.pool"),
		receipts:    p.Receipts,
		notifier:    p.Notifier,
		business:    p.Config.Receipts.BusinessName,
		workers:     workers,
		obsMetrics:  p.ObsMetrics,
		httpMetrics: p.HTTPMetrics,
		jobs:        make(chan job, size),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

// Stop stops accepting jobs and drains the queue, giving up when ctx ends.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.httpMetrics.SetQueueDepth(len(p.jobs))
		p.runJob(j)
	}
}

func (p *Pool) runJob(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, jobTimeout)
	defer cancel()

	log := p.log.With(
		zap.String("kind", j.kind),
		zap.String("correlation_id", correlation.ExtractCorrelationID(ctx)),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("side effect panicked", zap.Any("panic", r))
			p.obsMetrics.RecordSideEffect(ctx, j.kind, "panic")
		}
	}()

	if err := j.run(ctx); err != nil {
		log.Warn("side effect failed", zap.Error(err))
		p.obsMetrics.RecordSideEffect(ctx, j.kind, "error")
	}
}

func (p *Pool) enqueue(ctx context.Context, kind string, run func(ctx context.Context) error) {
	detached := correlation.Detach(ctx)
	if correlation.ExtractCorrelationID(detached) == "" {
		detached = correlation.ContextWithCorrelationID(detached, correlation.NewID())
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("side effect dropped after shutdown", zap.String("kind", kind))
		p.obsMetrics.RecordSideEffect(ctx, kind, "dropped")
		return
	}
	select {
	case p.jobs <- job{ctx: detached, kind: kind, run: run}:
		p.httpMetrics.SetQueueDepth(len(p.jobs))
	default:
		p.log.Warn("side effect queue full", zap.String("kind", kind))
		p.obsMetrics.RecordSideEffect(ctx, kind, "dropped")
	}
}

func (p *Pool) PaymentSucceeded(ctx context.Context, tx ledgerdomain.Transaction) {
	if strings.TrimSpace(tx.CustomerPhone) == "" {
		return
	}
	p.enqueue(ctx, notification.KindReceipt, func(ctx context.Context) error {
		return p.sendReceipt(ctx, tx.ID, "")
	})
}

func (p *Pool) PaymentRefunded(ctx context.Context, tx ledgerdomain.Transaction) {
	if strings.TrimSpace(tx.CustomerPhone) == "" {
		return
	}
	refunded := money.Money{Amount: tx.RefundedAmount, Currency: tx.Currency}
	p.enqueue(ctx, notification.KindRefund, func(ctx context.Context) error {
		body := notification.RefundMessage(refunded, tx.RefundRef, p.business)
		out := p.notifier.Notify(ctx, notification.KindRefund, tx.CustomerPhone, body)
		if !out.Success {
			return fmt.Errorf("refund notice for %s: %s", tx.ID, out.Error)
		}
		return nil
	})
}

func (p *Pool) LinkPaid(ctx context.Context, linkID snowflake.ID, phone string, tx ledgerdomain.Transaction) {
	if strings.TrimSpace(phone) == "" {
		return
	}
	p.enqueue(ctx, notification.KindReceipt, func(ctx context.Context) error {
		p.log.Debug("link paid", zap.String("payment_link_id", linkID.String()))
		return p.sendReceipt(ctx, tx.ID, phone)
	})
}

func (p *Pool) sendReceipt(ctx context.Context, txID snowflake.ID, phone string) error {
	receipt, err := p.receipts.Generate(ctx, receiptdomain.GenerateRequest{
		TransactionID: txID,
		Method:        receiptdomain.MethodSMS,
		Recipient:     phone,
	})
	if err != nil {
		return err
	}
	if !receipt.Delivered {
		return fmt.Errorf("receipt %s: %s", receipt.Number, receipt.DeliveryError)
	}
	return nil
}
