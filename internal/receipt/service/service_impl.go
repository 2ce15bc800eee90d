package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/smallbiznis/paydesk/internal/notification"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	"github.com/smallbiznis/paydesk/internal/providers/email"
	"github.com/smallbiznis/paydesk/internal/providers/pdf"
	"github.com/smallbiznis/paydesk/internal/providers/sms"
	"github.com/smallbiznis/paydesk/internal/receipt/domain"
	dbpkg "github.com/smallbiznis/paydesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const numberAttempts = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Policy     config.PolicySource
	Repo       domain.Repository
	LedgerSvc  ledgerdomain.Service
	Notifier   notification.Notifier
	PDF        pdf.Provider
	Email      email.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.ReceiptConfig
	smsCountry string
	policy     config.PolicySource
	repo       domain.Repository
	ledgerSvc  ledgerdomain.Service
	notifier   notification.Notifier
	pdf        pdf.Provider
	email      email.Provider
	obsMetrics *obsmetrics.Metrics

	nextNumber func(time.Time) string
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("receipt.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config.Receipts,
		smsCountry: p.Config.SMS.DefaultCountryCode,
		policy:     p.Policy,
		repo:       p.Repo,
		ledgerSvc:  p.LedgerSvc,
		notifier:   p.Notifier,
		pdf:        p.PDF,
		email:      p.Email,
		obsMetrics: p.ObsMetrics,
		nextNumber: randomNumber,
	}
}

// randomNumber returns RCP-YYMMDD-XXXX.
func randomNumber(now time.Time) string {
	return fmt.Sprintf("RCP-%s-%04d", now.UTC().Format("060102"), rand.IntN(10000))
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.Receipt, error) {
	if !req.Method.Valid() {
		return domain.Receipt{}, domain.ErrInvalidMethod
	}
	tx, err := s.ledgerSvc.Get(ctx, req.TransactionID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if tx.Status != ledgerdomain.StatusSucceeded && tx.Status != ledgerdomain.StatusRefunded {
		return domain.Receipt{}, domain.ErrTransactionNotPaid
	}

	recipient, err := s.recipient(req, tx)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt, err := s.insert(ctx, tx.ID, req.Method, recipient)
	if err != nil {
		return domain.Receipt{}, err
	}

	delivery := s.deliver(ctx, receipt, tx)
	if err := s.repo.UpdateDelivery(ctx, s.db, receipt.ID, delivery); err != nil {
		return domain.Receipt{}, err
	}
	receipt.Delivered = delivery.Delivered
	receipt.ProviderMessageID = delivery.ProviderMessageID
	receipt.DeliveryError = delivery.DeliveryError
	receipt.PDFPath = delivery.PDFPath

	outcome := "delivered"
	if !delivery.Delivered {
		outcome = "failed"
	}
	s.obsMetrics.RecordSideEffect(ctx, "receipt_"+string(req.Method), outcome)
	s.log.Info("receipt generated",
		zap.String("receipt_number", receipt.Number),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("method", string(req.Method)),
		zap.Bool("delivered", receipt.Delivered),
	)
	return receipt, nil
}

func (s *Service) recipient(req domain.GenerateRequest, tx ledgerdomain.Transaction) (string, error) {
	recipient := strings.TrimSpace(req.Recipient)
	switch req.Method {
	case domain.MethodSMS:
		if recipient == "" {
			recipient = tx.CustomerPhone
		}
		if !sms.ValidPhone(recipient) {
			return "", domain.ErrInvalidRecipient
		}
		return sms.NormalizePhone(recipient, s.smsCountry), nil
	case domain.MethodEmail:
		if recipient == "" {
			recipient = tx.CustomerEmail
		}
		if !strings.Contains(recipient, "@") {
			return "", domain.ErrInvalidRecipient
		}
	}
	return recipient, nil
}

// insert stores the receipt under a fresh number, drawing again when the
// number is already taken.
func (s *Service) insert(ctx context.Context, txID snowflake.ID, method domain.Method, recipient string) (domain.Receipt, error) {
	now := s.clock.Now()
	for attempt := 0; attempt < numberAttempts; attempt++ {
		receipt := domain.Receipt{
			ID:            s.genID.Generate(),
			Number:        s.nextNumber(now),
			TransactionID: txID,
			Method:        method,
			Recipient:     recipient,
			CreatedAt:     now,
		}
		err := s.repo.Insert(ctx, s.db, &receipt)
		if err == nil {
			return receipt, nil
		}
		if !dbpkg.IsDuplicateKeyErr(err) {
			return domain.Receipt{}, err
		}
		s.log.Debug("receipt number collision", zap.String("receipt_number", receipt.Number))
	}
	return domain.Receipt{}, domain.ErrNumberExhausted
}

func (s *Service) deliver(ctx context.Context, receipt domain.Receipt, tx ledgerdomain.Transaction) domain.Delivery {
	switch receipt.Method {
	case domain.MethodSMS:
		body := notification.ReceiptMessage(receipt.Number, tx.Money(), s.cfg.BusinessName)
		out := s.notifier.Notify(ctx, notification.KindReceipt, receipt.Recipient, body)
		return domain.Delivery{
			Delivered:         out.Success,
			ProviderMessageID: out.ProviderMessageID,
			DeliveryError:     out.Error,
		}
	case domain.MethodPrint:
		path, err := s.writePDF(ctx, receipt, tx)
		if err != nil {
			s.log.Warn("receipt pdf not written", zap.String("receipt_number", receipt.Number), zap.Error(err))
			return domain.Delivery{DeliveryError: err.Error()}
		}
		return domain.Delivery{Delivered: true, PDFPath: path}
	case domain.MethodEmail:
		data := s.templateData(receipt, tx)
		if err := s.email.SendTemplate(ctx, []string{receipt.Recipient}, "receipt", data); err != nil {
			s.log.Warn("receipt email not sent", zap.String("receipt_number", receipt.Number), zap.Error(err))
			return domain.Delivery{DeliveryError: err.Error()}
		}
		return domain.Delivery{Delivered: true}
	}
	return domain.Delivery{DeliveryError: domain.ErrInvalidMethod.Error()}
}

func (s *Service) writePDF(ctx context.Context, receipt domain.Receipt, tx ledgerdomain.Transaction) (string, error) {
	doc, err := s.pdf.RenderReceipt(ctx, s.pdfData(receipt, tx))
	if err != nil {
		return "", err
	}
	dir := s.cfg.OutputDir
	if dir == "" {
		dir = "receipts"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "receipt_"+receipt.Number+".pdf")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) pdfData(receipt domain.Receipt, tx ledgerdomain.Transaction) pdf.ReceiptData {
	data := pdf.ReceiptData{
		BusinessName:    s.cfg.BusinessName,
		BusinessAddress: s.cfg.BusinessAddress,
		BusinessPhone:   s.cfg.BusinessPhone,
		ReceiptNumber:   receipt.Number,
		IssuedAt:        tx.CreatedAt.UTC().Format("2006-01-02 15:04"),
		Description:     tx.Description,
		Amount:          tx.Money().Display(),
		PaidWith:        paidWith(tx),
		Footer:          s.policy.Get().ReceiptFooter,
	}
	if data.Description == "" {
		data.Description = "Payment"
	}
	if tx.RefundedAmount > 0 {
		data.Refunded = money.Money{Amount: tx.RefundedAmount, Currency: tx.Currency}.Display()
	}
	return data
}

func (s *Service) templateData(receipt domain.Receipt, tx ledgerdomain.Transaction) map[string]any {
	data := s.pdfData(receipt, tx)
	return map[string]any{
		"subject":          "Receipt " + receipt.Number + " from " + data.BusinessName,
		"business_name":    data.BusinessName,
		"business_address": data.BusinessAddress,
		"receipt_number":   data.ReceiptNumber,
		"issued_at":        data.IssuedAt,
		"description":      data.Description,
		"amount":           data.Amount,
		"refunded":         data.Refunded,
		"paid_with":        data.PaidWith,
		"footer":           data.Footer,
	}
}

func paidWith(tx ledgerdomain.Transaction) string {
	if tx.CardLast4 == "" {
		return "Paid via Card"
	}
	brand := "Card"
	if tx.CardBrand != "" {
		brand = strings.ToUpper(tx.CardBrand[:1]) + tx.CardBrand[1:]
	}
	return fmt.Sprintf("Paid via %s ****%s", brand, tx.CardLast4)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Receipt, error) {
	receipt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *receipt, nil
}

func (s *Service) ListByTransaction(ctx context.Context, txID snowflake.ID) ([]domain.Receipt, error) {
	if _, err := s.ledgerSvc.Get(ctx, txID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByTransaction(ctx, s.db, txID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Receipt{}
	}
	return items, nil
}

func (s *Service) RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, domain.Receipt, error) {
	receipt, err := s.Get(ctx, id)
	if err != nil {
		return nil, domain.Receipt{}, err
	}
	tx, err := s.ledgerSvc.Get(ctx, receipt.TransactionID)
	if err != nil {
		return nil, domain.Receipt{}, err
	}
	doc, err := s.pdf.RenderReceipt(ctx, s.pdfData(receipt, tx))
	if err != nil {
		return nil, domain.Receipt{}, err
	}
	return doc, receipt, nil
}
