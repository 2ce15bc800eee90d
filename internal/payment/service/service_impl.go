package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/gateway"
	idempotencydomain "github.com/smallbiznis/paydesk/internal/idempotency/domain"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
	obslogger "github.com/smallbiznis/paydesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paydesk/internal/payment/domain"
	"github.com/smallbiznis/paydesk/internal/sideeffect"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// localWriteAttempts bounds how often the post-gateway write is retried
	// with the reference already obtained.
	localWriteAttempts = 3
	localWriteBackoff  = 50 * time.Millisecond
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      config.PolicySource
	Gateway     gateway.Client
	LedgerSvc   ledgerdomain.Service
	LedgerRepo  ledgerdomain.Repository
	Idempotency idempotencydomain.Service
	Dispatcher  sideeffect.Dispatcher
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      config.PolicySource
	gateway     gateway.Client
	ledgerSvc   ledgerdomain.Service
	ledgerRepo  ledgerdomain.Repository
	idempotency idempotencydomain.Service
	dispatcher  sideeffect.Dispatcher
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	dispatcher := p.Dispatcher
	if dispatcher == nil {
		dispatcher = sideeffect.Discard{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		gateway:     p.Gateway,
		ledgerSvc:   p.LedgerSvc,
		ledgerRepo:  p.LedgerRepo,
		idempotency: p.Idempotency,
		dispatcher:  dispatcher,
		obsMetrics:  p.ObsMetrics,
	}
}

// CreatePayment opens a card payment. With an idempotency key the processor
// is called at most once per key and every caller sees the first outcome.
func (s *Service) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.CreatePaymentResponse, error) {
	amount, err := req.Validate(s.policy.Get())
	if err != nil {
		return paymentdomain.CreatePaymentResponse{}, err
	}
	req.Amount = amount
	key := strings.TrimSpace(req.IdempotencyKey)
	txID := s.genID.Generate()

	if key == "" {
		return s.charge(ctx, req, txID, "", false)
	}

	reservation, err := s.idempotency.Await(ctx, idempotencydomain.ReserveRequest{
		Key:           key,
		Fingerprint:   fingerprint(req),
		TransactionID: txID,
	})
	if err != nil {
		return paymentdomain.CreatePaymentResponse{}, err
	}
	if !reservation.Reserved {
		return s.replay(ctx, reservation.Record)
	}
	return s.charge(ctx, req, reservation.Record.TransactionID, key, reservation.Reclaimed)
}

func (s *Service) replay(ctx context.Context, record idempotencydomain.Record) (paymentdomain.CreatePaymentResponse, error) {
	resp := paymentdomain.CreatePaymentResponse{
		TransactionID: record.TransactionID,
		ExternalRef:   record.ExternalRef,
		ClientSecret:  record.ClientSecret,
		Status:        ledgerdomain.StatusPending,
		Replayed:      true,
	}
	tx, err := s.ledgerSvc.Get(ctx, record.TransactionID)
	if err != nil {
		return paymentdomain.CreatePaymentResponse{}, err
	}
	resp.Status = tx.Status
	s.obsMetrics.RecordPayment(ctx, ledgerdomain.PaymentMethodCard, "replayed")
	return resp, nil
}

func (s *Service) charge(ctx context.Context, req paymentdomain.CreatePaymentRequest, txID snowflake.ID, key string, reclaimed bool) (paymentdomain.CreatePaymentResponse, error) {
	log := obslogger.WithTransaction(obslogger.WithContext(ctx, s.log), txID.String())
	if key != "" {
		log = log.With(zap.String("idempotency_key", key))
	}

	if err := s.ensurePending(ctx, req, txID, reclaimed); err != nil {
		s.abandon(ctx, key, false)
		return paymentdomain.CreatePaymentResponse{}, err
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		Amount:         req.Amount,
		Description:    strings.TrimSpace(req.Description),
		ReceiptEmail:   strings.TrimSpace(req.Customer.Email),
		Metadata:       map[string]string{gateway.MetadataTransactionID: txID.String()},
		IdempotencyKey: processorKey(txID),
	})
	if err != nil {
		return paymentdomain.CreatePaymentResponse{}, s.gatewayFailed(ctx, log, txID, key, err)
	}
	log = log.With(zap.String("external_ref", intent.Ref))

	if err := s.completeLocally(ctx, txID, key, intent); err != nil {
		log.Error("reconciliation gap: processor intent created but local write failed", zap.Error(err))
		s.obsMetrics.RecordReconciliationGap(ctx, "create_payment")
		return paymentdomain.CreatePaymentResponse{}, fmt.Errorf("%w: %v", paymentdomain.ErrLedgerWrite, err)
	}

	s.obsMetrics.RecordPayment(ctx, ledgerdomain.PaymentMethodCard, "created")
	log.Info("payment created")
	return paymentdomain.CreatePaymentResponse{
		TransactionID: txID,
		ExternalRef:   intent.Ref,
		ClientSecret:  intent.ClientSecret,
		Status:        ledgerdomain.StatusPending,
	}, nil
}

// ensurePending writes the pending row before the processor is called so a
// webhook can always be matched. A reclaimed key reuses the earlier row.
func (s *Service) ensurePending(ctx context.Context, req paymentdomain.CreatePaymentRequest, txID snowflake.ID, reclaimed bool) error {
	if reclaimed {
		existing, err := s.ledgerRepo.FindByID(ctx, s.db, txID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
	}
	_, err := s.ledgerSvc.Create(ctx, ledgerdomain.CreateTransactionRequest{
		ID:            txID,
		Amount:        req.Amount,
		PaymentMethod: ledgerdomain.PaymentMethodCard,
		CustomerEmail: req.Customer.Email,
		CustomerPhone: req.Customer.Phone,
		Description:   req.Description,
	})
	return err
}

func (s *Service) gatewayFailed(ctx context.Context, log *zap.Logger, txID snowflake.ID, key string, err error) error {
	kind, _ := gateway.KindOf(err)
	switch {
	case errors.Is(err, gateway.ErrDeclined), errors.Is(err, gateway.ErrRejected):
		log.Info("payment refused by processor", zap.String("kind", string(kind)), zap.Error(err))
		s.obsMetrics.RecordPayment(ctx, ledgerdomain.PaymentMethodCard, string(kind))
		if _, terr := s.ledgerSvc.Transition(ctx, ledgerdomain.TransitionRequest{
			TransactionID:  txID,
			From:           []ledgerdomain.Status{ledgerdomain.StatusPending},
			To:             ledgerdomain.StatusFailed,
			CausingEventID: "gateway:" + string(kind) + ":" + txID.String(),
		}); terr != nil {
			log.Warn("failed to mark refused payment failed", zap.Error(terr))
		}
		s.abandon(ctx, key, false)
	default:
		log.Warn("processor unavailable during payment creation", zap.Error(err))
		s.obsMetrics.RecordPayment(ctx, ledgerdomain.PaymentMethodCard, "unavailable")
		s.abandon(ctx, key, true)
		if !errors.Is(err, gateway.ErrUnavailable) {
			err = gateway.Unavailable(err)
		}
	}
	return err
}

// abandon gives up the reservation. A retryable record keeps its transaction
// binding so the next attempt reuses the same processor idempotency key.
func (s *Service) abandon(ctx context.Context, key string, retryable bool) {
	if key == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if retryable {
		err = s.idempotency.MarkRetryable(ctx, key)
	} else {
		err = s.idempotency.Release(ctx, key)
	}
	if err != nil {
		s.log.Warn("failed to release idempotency reservation", zap.String("idempotency_key", key), zap.Error(err))
	}
}

// completeLocally attaches the processor reference and completes the key in
// one transaction, retrying with the same reference. The processor create is
// never repeated here.
func (s *Service) completeLocally(ctx context.Context, txID snowflake.ID, key string, intent gateway.Intent) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < localWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * localWriteBackoff)
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			attached, err := s.ledgerRepo.AttachExternalRef(ctx, tx, txID, intent.Ref, s.clock.Now())
			if err != nil {
				return err
			}
			if !attached {
				return ledgerdomain.ErrExternalRefConflict
			}
			if key == "" {
				return nil
			}
			return s.idempotency.Complete(ctx, tx, key, idempotencydomain.Outcome{
				TransactionID: txID,
				ExternalRef:   intent.Ref,
				ClientSecret:  intent.ClientSecret,
			})
		})
		if err == nil || errors.Is(err, ledgerdomain.ErrExternalRefConflict) {
			return err
		}
	}
	return err
}

// Refund refunds a succeeded transaction at the processor and then moves it
// to refunded.
func (s *Service) Refund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.RefundResponse, error) {
	tx, err := s.ledgerSvc.Get(ctx, req.TransactionID)
	if err != nil {
		return paymentdomain.RefundResponse{}, err
	}
	amount := req.Amount
	if amount == 0 {
		amount = tx.Amount
	}
	if tx.Status != ledgerdomain.StatusSucceeded || tx.ExternalRef == nil || amount < 0 || amount > tx.Amount {
		return paymentdomain.RefundResponse{}, paymentdomain.ErrNotRefundable
	}

	log := obslogger.WithTransaction(obslogger.WithContext(ctx, s.log), tx.ID.String()).
		With(zap.String("external_ref", *tx.ExternalRef))
	refund, err := s.gateway.CreateRefund(ctx, gateway.RefundRequest{
		IntentRef:      *tx.ExternalRef,
		Amount:         amount,
		IdempotencyKey: "refund:" + tx.ID.String(),
		Metadata:       map[string]string{gateway.MetadataTransactionID: tx.ID.String()},
	})
	if err != nil {
		log.Warn("processor refund failed", zap.Error(err))
		return paymentdomain.RefundResponse{}, err
	}
	if refund.Amount == 0 {
		refund.Amount = amount
	}

	resp := paymentdomain.RefundResponse{
		TransactionID: tx.ID,
		RefundRef:     refund.Ref,
		Amount:        money.Money{Amount: refund.Amount, Currency: tx.Currency},
		LedgerSynced:  true,
	}

	result, err := s.ledgerSvc.Transition(context.WithoutCancel(ctx), ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusSucceeded},
		To:             ledgerdomain.StatusRefunded,
		CausingEventID: "refund:" + refund.Ref,
		RefundRef:      refund.Ref,
		RefundedAmount: refund.Amount,
	})
	if err != nil {
		log.Error("reconciliation gap: processor refunded but ledger transition failed",
			zap.String("refund_ref", refund.Ref),
			zap.Error(err),
		)
		s.obsMetrics.RecordReconciliationGap(ctx, "refund")
		resp.LedgerSynced = false
		return resp, nil
	}

	log.Info("payment refunded", zap.String("refund_ref", refund.Ref), zap.Int64("amount", refund.Amount))
	if result.Applied {
		s.dispatcher.PaymentRefunded(ctx, result.Transaction)
	}
	return resp, nil
}

func (s *Service) SyncStatus(ctx context.Context, id snowflake.ID) (paymentdomain.SyncResponse, error) {
	tx, err := s.ledgerSvc.Get(ctx, id)
	if err != nil {
		return paymentdomain.SyncResponse{}, err
	}
	if tx.ExternalRef == nil || tx.Status != ledgerdomain.StatusPending {
		return paymentdomain.SyncResponse{Transaction: tx}, nil
	}

	intent, err := s.gateway.RetrieveIntent(ctx, *tx.ExternalRef)
	if err != nil {
		return paymentdomain.SyncResponse{}, err
	}
	resp := paymentdomain.SyncResponse{Transaction: tx, GatewayStatus: string(intent.Status)}

	var to ledgerdomain.Status
	switch intent.Status {
	case gateway.IntentSucceeded:
		to = ledgerdomain.StatusSucceeded
	case gateway.IntentCanceled:
		to = ledgerdomain.StatusFailed
	default:
		return resp, nil
	}

	result, err := s.ledgerSvc.Transition(ctx, ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusPending},
		To:             to,
		CausingEventID: "sync:" + intent.Ref + ":" + string(intent.Status),
		CardLast4:      intent.CardLast4,
		CardBrand:      intent.CardBrand,
	})
	if err != nil {
		return paymentdomain.SyncResponse{}, err
	}
	resp.Transaction = result.Transaction
	resp.Changed = result.Applied

	if result.Applied && to == ledgerdomain.StatusSucceeded {
		s.afterSucceeded(ctx, result.Transaction, intent.Metadata)
	}
	obslogger.WithTransaction(s.log, tx.ID.String()).Info("transaction status synced",
		zap.String("gateway_status", string(intent.Status)),
		zap.Bool("changed", result.Applied),
	)
	return resp, nil
}

// afterSucceeded settles the originating payment link when there is one and
// hands the transaction to the side-effect dispatcher.
func (s *Service) afterSucceeded(ctx context.Context, tx ledgerdomain.Transaction, metadata map[string]string) {
	raw := strings.TrimSpace(metadata[gateway.MetadataPaymentLinkID])
	if raw == "" {
		s.dispatcher.PaymentSucceeded(ctx, tx)
		return
	}
	linkID, err := snowflake.ParseString(raw)
	if err != nil {
		s.log.Warn("invalid payment link id in processor metadata", zap.String("payment_link_id", raw))
		s.dispatcher.PaymentSucceeded(ctx, tx)
		return
	}
	settled, err := s.ledgerSvc.SettleLink(ctx, linkID, tx.ID)
	if err != nil {
		s.log.Error("failed to settle payment link",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("payment_link_id", raw),
			zap.Error(err),
		)
		return
	}
	if settled.Applied {
		s.dispatcher.LinkPaid(ctx, linkID, tx.CustomerPhone, tx)
	}
}

// processorKey binds one local attempt to one processor create. A retryable
// reservation keeps its transaction id and so reuses the key; a released one
// gets a fresh id, letting a corrected request reach the processor.
func processorKey(txID snowflake.ID) string {
	return "pos:tx:" + txID.String()
}

func fingerprint(req paymentdomain.CreatePaymentRequest) string {
	sum := sha256.New()
	for _, part := range []string{
		strconv.FormatInt(req.Amount.Amount, 10),
		req.Amount.Currency,
		strings.TrimSpace(req.Description),
		strings.ToLower(strings.TrimSpace(req.Customer.Email)),
		strings.TrimSpace(req.Customer.Phone),
	} {
		sum.Write([]byte(part))
		sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))
}
