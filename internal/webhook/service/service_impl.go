package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/gateway"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	obscontext "github.com/smallbiznis/paydesk/internal/observability/context"
	obslogger "github.com/smallbiznis/paydesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	paymentlinkdomain "github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	"github.com/smallbiznis/paydesk/internal/sideeffect"
	"github.com/smallbiznis/paydesk/internal/webhook/domain"
	dbpkg "github.com/smallbiznis/paydesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Verifier    gateway.Verifier
	Repo        domain.Repository
	LedgerSvc   ledgerdomain.Service
	Links       paymentlinkdomain.Service
	Dispatcher  sideeffect.Dispatcher   `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics     `optional:"true"`
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	verifier    gateway.Verifier
	repo        domain.Repository
	ledgerSvc   ledgerdomain.Service
	links       paymentlinkdomain.Service
	dispatcher  sideeffect.Dispatcher
	obsMetrics  *obsmetrics.Metrics
	httpMetrics *obsmetrics.HTTPMetrics

	lookupAttempts int
	lookupBackoff  time.Duration
}

func NewService(p Params) domain.Service {
	dispatcher := p.Dispatcher
	if dispatcher == nil {
		dispatcher = sideeffect.Discard{}
	}
	attempts := p.Config.Webhook.LookupAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("webhook.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		verifier:       p.Verifier,
		repo:           p.Repo,
		ledgerSvc:      p.LedgerSvc,
		links:          p.Links,
		dispatcher:     dispatcher,
		obsMetrics:     p.ObsMetrics,
		httpMetrics:    p.HTTPMetrics,
		lookupAttempts: attempts,
		lookupBackoff:  p.Config.Webhook.LookupBackoff,
	}
}

// handled is the result of applying one event.
type handled struct {
	outcome domain.Outcome
	detail  string
}

func (s *Service) Ingest(ctx context.Context, payload []byte, signatureHeader string) (domain.Result, error) {
	provider := s.verifier.Provider()
	event, err := s.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		s.log.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "unknown", "rejected")
		return domain.Result{}, err
	}

	env := event.Envelope()
	result := domain.Result{EventID: env.ID, EventType: env.Type}
	ctx = obscontext.WithEventID(ctx, env.ID)
	log := obslogger.WithContext(ctx, s.log).With(zap.String("event_type", env.Type))

	received := domain.Event{
		ID:         s.genID.Generate(),
		Provider:   provider,
		EventID:    env.ID,
		EventType:  env.Type,
		Payload:    datatypes.JSON(payload),
		Outcome:    domain.OutcomeRetry,
		ReceivedAt: s.clock.Now(),
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, &received)
	if err != nil {
		return result, s.storeFailure(log, err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindByEventID(ctx, s.db, provider, env.ID)
		if err != nil {
			return result, s.storeFailure(log, err)
		}
		if stored == nil {
			return result, fmt.Errorf("%w: event %s vanished", domain.ErrUnavailable, env.ID)
		}
		if stored.Processed() {
			log.Info("webhook already processed", zap.String("outcome", string(stored.Outcome)))
			result.Outcome = stored.Outcome
			result.Duplicate = true
			s.obsMetrics.RecordWebhookEvent(ctx, provider, env.Type, "duplicate")
			return result, nil
		}
	}

	h, err := s.apply(ctx, log, event)
	if err != nil {
		if !s.retryable(err) {
			log.Error("webhook processing failed", zap.Error(err))
			h = handled{outcome: domain.OutcomeFailed, detail: err.Error()}
		} else {
			log.Warn("webhook deferred for redelivery", zap.Error(err))
			if recErr := s.repo.RecordAttempt(ctx, s.db, stored.ID, domain.OutcomeRetry, err.Error()); recErr != nil {
				log.Warn("webhook attempt not recorded", zap.Error(recErr))
			}
			s.obsMetrics.RecordWebhookEvent(ctx, provider, env.Type, string(domain.OutcomeRetry))
			result.Outcome = domain.OutcomeRetry
			return result, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, h.outcome, h.detail, s.clock.Now()); err != nil {
		// Reapplying the event is a replay, so asking for redelivery is safe.
		if dbpkg.IsUnavailable(err) {
			return result, s.storeFailure(log, err)
		}
		log.Error("webhook not marked processed", zap.Error(err))
	}

	s.obsMetrics.RecordWebhookEvent(ctx, provider, env.Type, string(h.outcome))
	log.Info("webhook processed", zap.String("outcome", string(h.outcome)))
	result.Outcome = h.outcome
	return result, nil
}

func (s *Service) storeFailure(log *zap.Logger, err error) error {
	log.Warn("webhook store unavailable", zap.Error(err))
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

func (s *Service) retryable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable) || dbpkg.IsUnavailable(err)
}

func (s *Service) apply(ctx context.Context, log *zap.Logger, event gateway.Event) (handled, error) {
	switch e := event.(type) {
	case gateway.PaymentSucceeded:
		return s.paymentSucceeded(ctx, log, e)
	case gateway.PaymentFailed:
		return s.paymentFailed(ctx, log, e)
	case gateway.CheckoutCompleted:
		return s.checkoutCompleted(ctx, log, e)
	case gateway.ChargeRefunded:
		return s.chargeRefunded(ctx, log, e)
	default:
		log.Warn("unhandled webhook event type")
		return handled{outcome: domain.OutcomeIgnored}, nil
	}
}

func (s *Service) paymentSucceeded(ctx context.Context, log *zap.Logger, e gateway.PaymentSucceeded) (handled, error) {
	tx, found, err := s.resolve(ctx, e.IntentRef, e.Metadata)
	if err != nil || !found {
		return s.unresolved(log, e.Metadata, err)
	}

	res, err := s.ledgerSvc.Transition(ctx, ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusPending},
		To:             ledgerdomain.StatusSucceeded,
		CausingEventID: e.Meta.ID,
		CardLast4:      e.CardLast4,
		CardBrand:      e.CardBrand,
	})
	if err != nil {
		return s.transitionFailure(log, tx.ID, err)
	}

	if linkID, ok := linkIDFrom(e.Metadata); ok {
		return s.settleLink(ctx, log, linkID, res.Transaction, e.Meta.Created)
	}
	if !res.Applied {
		return handled{outcome: domain.OutcomeReplayed}, nil
	}
	s.dispatcher.PaymentSucceeded(ctx, res.Transaction)
	return handled{outcome: domain.OutcomeApplied}, nil
}

func (s *Service) paymentFailed(ctx context.Context, log *zap.Logger, e gateway.PaymentFailed) (handled, error) {
	tx, found, err := s.resolve(ctx, e.IntentRef, e.Metadata)
	if err != nil || !found {
		return s.unresolved(log, e.Metadata, err)
	}

	res, err := s.ledgerSvc.Transition(ctx, ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusPending},
		To:             ledgerdomain.StatusFailed,
		CausingEventID: e.Meta.ID,
	})
	if err != nil {
		return s.transitionFailure(log, tx.ID, err)
	}
	if !res.Applied {
		return handled{outcome: domain.OutcomeReplayed}, nil
	}
	return handled{outcome: domain.OutcomeApplied, detail: e.FailureCode}, nil
}

func (s *Service) checkoutCompleted(ctx context.Context, log *zap.Logger, e gateway.CheckoutCompleted) (handled, error) {
	link, err := s.links.FindBySessionRef(ctx, e.SessionRef)
	if errors.Is(err, paymentlinkdomain.ErrNotFound) {
		log.Warn("checkout session does not match a payment link", zap.String("session_ref", e.SessionRef))
		return handled{outcome: domain.OutcomeUnknownReference}, nil
	}
	if err != nil {
		return handled{}, err
	}
	switch e.PaymentStatus {
	case "", "paid", "no_payment_required":
	default:
		return handled{outcome: domain.OutcomeIgnored, detail: "payment_status=" + e.PaymentStatus}, nil
	}

	ref := e.IntentRef
	if ref == "" {
		ref = e.SessionRef
	}
	tx, _, err := s.ledgerSvc.EnsureByExternalRef(ctx, ledgerdomain.CreateTransactionRequest{
		Amount:        link.Money(),
		PaymentMethod: ledgerdomain.PaymentMethodPaymentLink,
		ExternalRef:   &ref,
		CustomerEmail: e.CustomerEmail,
		CustomerPhone: link.Phone,
		Description:   link.Description,
	})
	if err != nil {
		return handled{}, err
	}

	res, err := s.ledgerSvc.Transition(ctx, ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusPending},
		To:             ledgerdomain.StatusSucceeded,
		CausingEventID: e.Meta.ID,
	})
	if err != nil {
		return s.transitionFailure(log, tx.ID, err)
	}
	return s.settleLink(ctx, log, link.ID, res.Transaction, e.Meta.Created)
}

func (s *Service) chargeRefunded(ctx context.Context, log *zap.Logger, e gateway.ChargeRefunded) (handled, error) {
	tx, found, err := s.resolve(ctx, e.IntentRef, e.Metadata)
	if err != nil || !found {
		return s.unresolved(log, e.Metadata, err)
	}

	res, err := s.ledgerSvc.Transition(ctx, ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusSucceeded},
		To:             ledgerdomain.StatusRefunded,
		CausingEventID: e.Meta.ID,
		RefundRef:      e.RefundRef,
		RefundedAmount: e.AmountRefunded,
	})
	if err != nil {
		return s.transitionFailure(log, tx.ID, err)
	}
	if res.RefundRaised {
		s.dispatcher.PaymentRefunded(ctx, res.Transaction)
		return handled{outcome: domain.OutcomeApplied, detail: "refund_raised"}, nil
	}
	if !res.Applied {
		return handled{outcome: domain.OutcomeReplayed}, nil
	}
	s.dispatcher.PaymentRefunded(ctx, res.Transaction)
	return handled{outcome: domain.OutcomeApplied}, nil
}

// settleLink marks the link paid by tx. A link already past expiry when the
// payment happened stays unpaid even though the money moved.
func (s *Service) settleLink(ctx context.Context, log *zap.Logger, linkID snowflake.ID, tx ledgerdomain.Transaction, paidAt time.Time) (handled, error) {
	link, err := s.links.Get(ctx, linkID)
	if errors.Is(err, paymentlinkdomain.ErrNotFound) {
		log.Error("payment references an unknown payment link", zap.String("payment_link_id", linkID.String()))
		return handled{outcome: domain.OutcomeUnknownReference}, nil
	}
	if err != nil {
		return handled{}, err
	}

	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	if !link.Paid && link.IsExpired(paidAt) {
		log.Error("payment received for expired link",
			zap.String("payment_link_id", link.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
		)
		return handled{outcome: domain.OutcomeLinkExpired}, nil
	}

	settled, err := s.ledgerSvc.SettleLink(ctx, link.ID, tx.ID)
	if errors.Is(err, ledgerdomain.ErrLinkNotSettled) {
		log.Error("payment link already paid by another transaction",
			zap.String("payment_link_id", link.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
		)
		return handled{outcome: domain.OutcomeFailed, detail: err.Error()}, nil
	}
	if err != nil {
		return handled{}, err
	}
	if !settled.Applied {
		return handled{outcome: domain.OutcomeReplayed}, nil
	}
	s.dispatcher.LinkPaid(ctx, link.ID, link.Phone, tx)
	return handled{outcome: domain.OutcomeApplied}, nil
}

// resolve finds the local transaction an event refers to, by the id written
// into processor metadata first and by processor reference second. A row
// named in metadata but not yet visible is polled for with bounded backoff.
func (s *Service) resolve(ctx context.Context, ref string, metadata map[string]string) (ledgerdomain.Transaction, bool, error) {
	if raw := strings.TrimSpace(metadata[gateway.MetadataTransactionID]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err == nil && id > 0 {
			return s.lookupByID(ctx, id)
		}
	}
	if strings.TrimSpace(ref) == "" {
		return ledgerdomain.Transaction{}, false, nil
	}
	tx, err := s.ledgerSvc.FindByExternalRef(ctx, ref)
	if errors.Is(err, ledgerdomain.ErrNotFound) {
		return ledgerdomain.Transaction{}, false, nil
	}
	if err != nil {
		return ledgerdomain.Transaction{}, false, err
	}
	return tx, true, nil
}

func (s *Service) lookupByID(ctx context.Context, id snowflake.ID) (ledgerdomain.Transaction, bool, error) {
	for attempt := 1; attempt <= s.lookupAttempts; attempt++ {
		tx, err := s.ledgerSvc.Get(ctx, id)
		if err == nil {
			s.httpMetrics.ObserveWebhookLookup(attempt, true)
			return tx, true, nil
		}
		if !errors.Is(err, ledgerdomain.ErrNotFound) {
			return ledgerdomain.Transaction{}, false, err
		}
		if attempt == s.lookupAttempts {
			break
		}
		timer := time.NewTimer(s.lookupBackoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ledgerdomain.Transaction{}, false, fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	s.httpMetrics.ObserveWebhookLookup(s.lookupAttempts, false)
	return ledgerdomain.Transaction{}, false, fmt.Errorf("%w: transaction %s not visible yet", domain.ErrUnavailable, id)
}

// unresolved turns a failed lookup into an outcome. A link payment's
// transaction is created by checkout.session.completed, so an intent event
// that wins that race is left unprocessed for redelivery. Its card details
// are backfilled when it comes back.
func (s *Service) unresolved(log *zap.Logger, metadata map[string]string, err error) (handled, error) {
	if err != nil {
		return handled{}, err
	}
	if linkID, ok := linkIDFrom(metadata); ok {
		return handled{}, fmt.Errorf("%w: payment link %s awaiting checkout completion", domain.ErrUnavailable, linkID)
	}
	log.Warn("webhook references no known transaction")
	return handled{outcome: domain.OutcomeUnknownReference}, nil
}

func (s *Service) transitionFailure(log *zap.Logger, txID snowflake.ID, err error) (handled, error) {
	if errors.Is(err, ledgerdomain.ErrIllegalTransition) {
		log.Error("illegal transition needs operator review",
			zap.String("transaction_id", txID.String()),
			zap.Error(err),
		)
		return handled{outcome: domain.OutcomeIllegal, detail: err.Error()}, nil
	}
	return handled{}, err
}

func linkIDFrom(metadata map[string]string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(metadata[gateway.MetadataPaymentLinkID])
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
