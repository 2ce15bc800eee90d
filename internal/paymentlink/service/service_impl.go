package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/gateway"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/smallbiznis/paydesk/internal/notification"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	"github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	"github.com/smallbiznis/paydesk/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxDescriptionLength = 500

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Policy     config.PolicySource
	Repo       domain.Repository
	Gateway    gateway.Client
	Notifier   notification.Notifier
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	policy     config.PolicySource
	repo       domain.Repository
	gateway    gateway.Client
	notifier   notification.Notifier
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("paymentlink.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		policy:     p.Policy,
		repo:       p.Repo,
		gateway:    p.Gateway,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateLink(ctx context.Context, req domain.CreateLinkRequest) (domain.CreateLinkResponse, error) {
	policy := s.policy.Get()

	amount, err := s.validateAmount(req.Amount, policy)
	if err != nil {
		return domain.CreateLinkResponse{}, err
	}
	phone := strings.TrimSpace(req.Phone)
	if !sms.ValidPhone(phone) {
		return domain.CreateLinkResponse{}, domain.ErrInvalidPhone
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return domain.CreateLinkResponse{}, domain.ErrInvalidRequest
	}

	expiry := req.Expiry
	if expiry == 0 {
		expiry = policy.LinkExpiry
	}
	if expiry < policy.LinkMinExpiry || expiry > policy.LinkMaxExpiry {
		return domain.CreateLinkResponse{}, domain.ErrInvalidExpiry
	}

	now := s.clock.Now()
	linkID := s.genID.Generate()
	expiresAt := now.Add(expiry)

	metadata := map[string]string{gateway.MetadataPaymentLinkID: linkID.String()}
	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		Amount:         amount,
		ProductName:    description,
		ExpiresAt:      expiresAt,
		SuccessURL:     s.cfg.Stripe.SuccessURL,
		CancelURL:      s.cfg.Stripe.CancelURL,
		Metadata:       metadata,
		IdempotencyKey: "link:" + linkID.String(),
	})
	if err != nil {
		s.obsMetrics.RecordPayment(ctx, "payment_link", "gateway_error")
		return domain.CreateLinkResponse{}, err
	}
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}

	link := domain.PaymentLink{
		ID:          linkID,
		SessionRef:  session.Ref,
		URL:         session.URL,
		Amount:      amount.Amount,
		Currency:    amount.Currency,
		Phone:       sms.NormalizePhone(phone, s.cfg.SMS.DefaultCountryCode),
		Description: description,
		ExpiresAt:   expiresAt,
		Metadata:    datatypes.JSONMap{gateway.MetadataPaymentLinkID: linkID.String()},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &link); err != nil {
		// The session expires on its own; nothing can pay it without a row.
		s.log.Error("payment link insert failed after checkout session created",
			zap.String("link_id", linkID.String()),
			zap.String("external_ref", session.Ref),
			zap.Error(err),
		)
		return domain.CreateLinkResponse{}, err
	}
	s.obsMetrics.RecordPayment(ctx, "payment_link", "created")
	s.log.Info("payment link created",
		zap.String("link_id", linkID.String()),
		zap.String("external_ref", session.Ref),
		zap.Time("expires_at", expiresAt),
	)

	resp := domain.CreateLinkResponse{
		LinkID:    link.ID,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
	}
	if req.SendNotification {
		out := s.deliver(ctx, &link)
		resp.Notified = out.Success
		resp.NotifyError = out.Error
	}
	return resp, nil
}

func (s *Service) validateAmount(amount money.Money, policy config.PaymentPolicy) (money.Money, error) {
	if !amount.IsPositive() || amount.Amount > policy.MaxAmount {
		return money.Money{}, domain.ErrInvalidAmount
	}
	currency, err := money.NormalizeCurrency(amount.Currency)
	if err != nil || !policy.AllowsCurrency(currency) {
		return money.Money{}, domain.ErrInvalidCurrency
	}
	return money.Money{Amount: amount.Amount, Currency: currency}, nil
}

// Resend re-delivers the link SMS. An expired link is reported as expired
// even when it was also paid.
func (s *Service) Resend(ctx context.Context, id snowflake.ID) (domain.ResendResponse, error) {
	link, err := s.Get(ctx, id)
	if err != nil {
		return domain.ResendResponse{}, err
	}
	if link.IsExpired(s.clock.Now()) {
		return domain.ResendResponse{}, domain.ErrExpired
	}
	if link.Paid {
		return domain.ResendResponse{}, domain.ErrAlreadyPaid
	}

	out := s.deliver(ctx, &link)
	return domain.ResendResponse{
		LinkID:    link.ID,
		Notified:  out.Success,
		MessageID: out.ProviderMessageID,
		Error:     out.Error,
	}, nil
}

func (s *Service) deliver(ctx context.Context, link *domain.PaymentLink) notification.Outcome {
	now := s.clock.Now()
	body := notification.PaymentLinkMessage(link.Money(), link.URL, link.ExpiresAt.Sub(now))
	out := s.notifier.Notify(ctx, notification.KindPaymentLink, link.Phone, body)

	delivery := domain.Delivery{
		Sent:      out.Success,
		MessageID: out.ProviderMessageID,
		Error:     out.Error,
		At:        s.clock.Now(),
	}
	if err := s.repo.RecordDelivery(ctx, s.db, link.ID, delivery); err != nil {
		s.log.Warn("failed to record link delivery", zap.String("link_id", link.ID.String()), zap.Error(err))
	}
	if !out.Success {
		s.log.Warn("payment link sms not delivered", zap.String("link_id", link.ID.String()), zap.String("error", out.Error))
	}
	return out
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.PaymentLink, error) {
	if id == 0 {
		return domain.PaymentLink{}, domain.ErrNotFound
	}
	link, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.PaymentLink{}, err
	}
	if link == nil {
		return domain.PaymentLink{}, domain.ErrNotFound
	}
	return *link, nil
}

func (s *Service) FindBySessionRef(ctx context.Context, ref string) (domain.PaymentLink, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.PaymentLink{}, domain.ErrNotFound
	}
	link, err := s.repo.FindBySessionRef(ctx, s.db, ref)
	if err != nil {
		return domain.PaymentLink{}, err
	}
	if link == nil {
		return domain.PaymentLink{}, domain.ErrNotFound
	}
	return *link, nil
}
