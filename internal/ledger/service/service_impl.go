package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100

	// casAttempts bounds how often a transition re-reads the row after losing
	// a compare-and-set race before giving up.
	casAttempts = 3
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req ledgerdomain.CreateTransactionRequest) (ledgerdomain.Transaction, error) {
	tx, err := s.newTransaction(req)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	if err := s.repo.Insert(ctx, s.db, &tx); err != nil {
		return ledgerdomain.Transaction{}, err
	}
	return tx, nil
}

func (s *Service) EnsureByExternalRef(ctx context.Context, req ledgerdomain.CreateTransactionRequest) (ledgerdomain.Transaction, bool, error) {
	if req.ExternalRef == nil || strings.TrimSpace(*req.ExternalRef) == "" {
		return ledgerdomain.Transaction{}, false, ledgerdomain.ErrExternalRefConflict
	}
	tx, err := s.newTransaction(req)
	if err != nil {
		return ledgerdomain.Transaction{}, false, err
	}

	created, err := s.repo.InsertIfAbsent(ctx, s.db, &tx)
	if err != nil {
		return ledgerdomain.Transaction{}, false, err
	}
	if created {
		return tx, true, nil
	}

	existing, err := s.repo.FindByExternalRef(ctx, s.db, *req.ExternalRef)
	if err != nil {
		return ledgerdomain.Transaction{}, false, err
	}
	if existing == nil {
		// The conflict was on the id, not on the reference.
		return ledgerdomain.Transaction{}, false, ledgerdomain.ErrExternalRefConflict
	}
	return *existing, false, nil
}

func (s *Service) newTransaction(req ledgerdomain.CreateTransactionRequest) (ledgerdomain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidAmount
	}
	currency, err := money.NormalizeCurrency(req.Amount.Currency)
	if err != nil {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidCurrency
	}

	id := req.ID
	if id == 0 {
		id = s.genID.Generate()
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = ledgerdomain.PaymentMethodCard
	}

	now := s.clock.Now()
	return ledgerdomain.Transaction{
		ID:            id,
		ExternalRef:   req.ExternalRef,
		Amount:        req.Amount.Amount,
		Currency:      currency,
		Status:        ledgerdomain.StatusPending,
		PaymentMethod: method,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Description:   strings.TrimSpace(req.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (ledgerdomain.Transaction, error) {
	if id == 0 {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidID
	}
	tx, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	if tx == nil {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrNotFound
	}
	return *tx, nil
}

func (s *Service) FindByExternalRef(ctx context.Context, ref string) (ledgerdomain.Transaction, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrNotFound
	}
	tx, err := s.repo.FindByExternalRef(ctx, s.db, ref)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	if tx == nil {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrNotFound
	}
	return *tx, nil
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	perPage := req.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	filter := ledgerdomain.ListFilter{
		Offset: (page - 1) * perPage,
		Limit:  perPage,
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := ledgerdomain.ParseStatus(raw)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, err
		}
		filter.Status = status
	}

	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.ListTransactionsResponse{}, err
	}
	if items == nil {
		items = []ledgerdomain.Transaction{}
	}

	return ledgerdomain.ListTransactionsResponse{
		Transactions: items,
		Total:        total,
		Page:         page,
		PerPage:      perPage,
		Pages:        int(math.Ceil(float64(total) / float64(perPage))),
	}, nil
}

func (s *Service) History(ctx context.Context, id snowflake.ID) ([]ledgerdomain.Transition, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransitions(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []ledgerdomain.Transition{}
	}
	return items, nil
}

// Transition applies req as a compare-and-set on the stored status.
//
// A request whose target already holds, or whose causing event already moved
// the row into the target, succeeds without a change. Anything else outside
// req.From is an IllegalTransitionError.
func (s *Service) Transition(ctx context.Context, req ledgerdomain.TransitionRequest) (ledgerdomain.TransitionResult, error) {
	if req.TransactionID == 0 {
		return ledgerdomain.TransitionResult{}, ledgerdomain.ErrInvalidID
	}
	if !req.To.Valid() || len(req.From) == 0 {
		return ledgerdomain.TransitionResult{}, ledgerdomain.ErrInvalidStatus
	}
	for _, from := range req.From {
		if !ledgerdomain.CanTransition(from, req.To) {
			return ledgerdomain.TransitionResult{}, &ledgerdomain.IllegalTransitionError{
				TransactionID: req.TransactionID,
				Current:       from,
				From:          req.From,
				To:            req.To,
			}
		}
	}

	var result ledgerdomain.TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < casAttempts; attempt++ {
			current, err := s.repo.FindByID(ctx, tx, req.TransactionID)
			if err != nil {
				return err
			}
			if current == nil {
				return ledgerdomain.ErrNotFound
			}

			replay, err := s.isReplay(ctx, tx, current, req)
			if err != nil {
				return err
			}
			if replay {
				if err := s.backfillCard(ctx, tx, current, req); err != nil {
					return err
				}
				raised, err := s.raiseRefund(ctx, tx, current, req)
				if err != nil {
					return err
				}
				result = ledgerdomain.TransitionResult{Transaction: *current, RefundRaised: raised}
				return nil
			}

			if !containsStatus(req.From, current.Status) {
				return &ledgerdomain.IllegalTransitionError{
					TransactionID: current.ID,
					Current:       current.Status,
					From:          req.From,
					To:            req.To,
				}
			}

			now := s.clock.Now()
			applied, err := s.repo.CompareAndSetStatus(ctx, tx, ledgerdomain.StatusUpdate{
				TransactionID:  current.ID,
				Expected:       current.Status,
				Next:           req.To,
				CausingEventID: req.CausingEventID,
				CardLast4:      req.CardLast4,
				CardBrand:      req.CardBrand,
				RefundRef:      req.RefundRef,
				RefundedAmount: req.RefundedAmount,
				UpdatedAt:      now,
			})
			if err != nil {
				return err
			}
			if !applied {
				continue
			}

			if err := s.repo.InsertTransition(ctx, tx, &ledgerdomain.Transition{
				ID:             s.genID.Generate(),
				TransactionID:  current.ID,
				FromStatus:     current.Status,
				ToStatus:       req.To,
				CausingEventID: req.CausingEventID,
				CreatedAt:      now,
			}); err != nil {
				return err
			}

			updated, err := s.repo.FindByID(ctx, tx, current.ID)
			if err != nil {
				return err
			}
			result = ledgerdomain.TransitionResult{Transaction: *updated, Applied: true}
			return nil
		}
		return errors.New("transition_contended")
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrIllegalTransition) {
			s.log.Error("illegal transition rejected",
				zap.String("transaction_id", req.TransactionID.String()),
				zap.String("to", string(req.To)),
				zap.String("causing_event_id", req.CausingEventID),
				zap.Error(err),
			)
			s.obsMetrics.RecordIllegalTransition(ctx, string(req.To))
		}
		return ledgerdomain.TransitionResult{}, err
	}

	if result.RefundRaised {
		s.log.Info("refunded amount raised",
			zap.String("transaction_id", req.TransactionID.String()),
			zap.Int64("refunded_amount", result.Transaction.RefundedAmount),
			zap.String("causing_event_id", req.CausingEventID),
		)
	}
	if result.Applied {
		s.obsMetrics.RecordTransition(ctx, string(req.To))
		s.log.Info("transaction transitioned",
			zap.String("transaction_id", req.TransactionID.String()),
			zap.String("to", string(req.To)),
			zap.String("causing_event_id", req.CausingEventID),
		)
	}
	return result, nil
}

func (s *Service) isReplay(ctx context.Context, tx *gorm.DB, current *ledgerdomain.Transaction, req ledgerdomain.TransitionRequest) (bool, error) {
	if current.Status == req.To {
		return true, nil
	}
	if strings.TrimSpace(req.CausingEventID) == "" {
		return false, nil
	}
	// The same event already moved the row here and something later moved it on.
	prior, err := s.repo.FindTransitionByEvent(ctx, tx, current.ID, req.CausingEventID, req.To)
	if err != nil {
		return false, err
	}
	return prior != nil, nil
}

func (s *Service) backfillCard(ctx context.Context, tx *gorm.DB, current *ledgerdomain.Transaction, req ledgerdomain.TransitionRequest) error {
	if req.To != ledgerdomain.StatusSucceeded || req.CardLast4 == "" || current.CardLast4 != "" {
		return nil
	}
	now := s.clock.Now()
	if err := s.repo.AttachCardDetails(ctx, tx, current.ID, req.CardLast4, req.CardBrand, now); err != nil {
		return err
	}
	current.CardLast4 = req.CardLast4
	current.CardBrand = req.CardBrand
	current.UpdatedAt = now
	return nil
}

// raiseRefund applies a later partial refund to a row that is already
// refunded. Processors report the cumulative amount, so only growth counts.
func (s *Service) raiseRefund(ctx context.Context, tx *gorm.DB, current *ledgerdomain.Transaction, req ledgerdomain.TransitionRequest) (bool, error) {
	if req.To != ledgerdomain.StatusRefunded || current.Status != ledgerdomain.StatusRefunded {
		return false, nil
	}
	if req.RefundedAmount <= current.RefundedAmount {
		return false, nil
	}
	now := s.clock.Now()
	raised, err := s.repo.RaiseRefund(ctx, tx, ledgerdomain.RefundUpdate{
		TransactionID:  current.ID,
		RefundRef:      req.RefundRef,
		RefundedAmount: req.RefundedAmount,
		CausingEventID: req.CausingEventID,
		UpdatedAt:      now,
	})
	if err != nil || !raised {
		return false, err
	}
	current.RefundRef = req.RefundRef
	current.RefundedAmount = req.RefundedAmount
	current.LastEventID = req.CausingEventID
	current.UpdatedAt = now
	return true, nil
}

// SettleLink records that linkID was paid by txID. Settling an already paid
// link with the same transaction is a replay.
func (s *Service) SettleLink(ctx context.Context, linkID, txID snowflake.ID) (ledgerdomain.SettleLinkResult, error) {
	if linkID == 0 || txID == 0 {
		return ledgerdomain.SettleLinkResult{}, ledgerdomain.ErrInvalidID
	}

	applied, err := s.repo.SettleLink(ctx, s.db, linkID, txID, s.clock.Now())
	if err != nil {
		return ledgerdomain.SettleLinkResult{}, err
	}
	if applied {
		return ledgerdomain.SettleLinkResult{Applied: true}, nil
	}

	current, err := s.repo.FindLinkSettlement(ctx, s.db, linkID)
	if err != nil {
		return ledgerdomain.SettleLinkResult{}, err
	}
	if current == nil {
		return ledgerdomain.SettleLinkResult{}, ledgerdomain.ErrNotFound
	}
	if current.Paid && current.TransactionID != nil && *current.TransactionID == txID {
		return ledgerdomain.SettleLinkResult{}, nil
	}
	return ledgerdomain.SettleLinkResult{}, ledgerdomain.ErrLinkNotSettled
}

func containsStatus(statuses []ledgerdomain.Status, target ledgerdomain.Status) bool {
	for _, status := range statuses {
		if status == target {
			return true
		}
	}
	return false
}
