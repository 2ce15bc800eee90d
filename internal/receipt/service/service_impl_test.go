package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/paydesk/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/paydesk/internal/ledger/service"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/smallbiznis/paydesk/internal/notification"
	"github.com/smallbiznis/paydesk/internal/providers/pdf"
	"github.com/smallbiznis/paydesk/internal/receipt/domain"
	"github.com/smallbiznis/paydesk/internal/receipt/repository"
	"github.com/smallbiznis/paydesk/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubNotifier struct {
	outcome notification.Outcome
	phones  []string
	bodies  []string
}

func (n *stubNotifier) Notify(ctx context.Context, kind, phone, body string) notification.Outcome {
	n.phones = append(n.phones, phone)
	n.bodies = append(n.bodies, body)
	return n.outcome
}

type stubEmail struct {
	err  error
	to   []string
	data map[string]any
}

func (e *stubEmail) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	return e.err
}

func (e *stubEmail) SendTemplate(ctx context.Context, to []string, name string, data map[string]any) error {
	e.to = to
	e.data = data
	return e.err
}

type stubPDF struct {
	last pdf.ReceiptData
}

func (p *stubPDF) RenderReceipt(ctx context.Context, data pdf.ReceiptData) ([]byte, error) {
	p.last = data
	return []byte("%PDF-1.3 " + data.ReceiptNumber), nil
}

type testEnv struct {
	svc      *Service
	ledger   ledgerdomain.Service
	notifier *stubNotifier
	email    *stubEmail
	pdf      *stubPDF
	dir      string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide()})

	cfg := config.Config{}
	cfg.SMS.DefaultCountryCode = "254"
	cfg.Receipts = config.ReceiptConfig{BusinessName: "Mama Mboga", OutputDir: filepath.Join(t.TempDir(), "out")}

	env := testEnv{
		ledger:   ledger,
		notifier: &stubNotifier{outcome: notification.Outcome{Success: true, ProviderMessageID: "ATXid_9"}},
		email:    &stubEmail{},
		pdf:      &stubPDF{},
		dir:      cfg.Receipts.OutputDir,
	}
	env.svc = newService(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
		Policy:    config.StaticPolicy(config.DefaultPaymentPolicy()),
		Repo:      repository.Provide(),
		LedgerSvc: ledger,
		Notifier:  env.notifier,
		PDF:       env.pdf,
		Email:     env.email,
	})
	return env
}

func (e testEnv) paidTransaction(t *testing.T) ledgerdomain.Transaction {
	t.Helper()
	ctx := context.Background()
	tx, err := e.ledger.Create(ctx, ledgerdomain.CreateTransactionRequest{
		Amount:        money.Money{Amount: 250000, Currency: "kes"},
		PaymentMethod: ledgerdomain.PaymentMethodCard,
		CustomerPhone: "+254712345678",
		CustomerEmail: "amina@example.com",
		Description:   "Groceries",
	})
	require.NoError(t, err)
	res, err := e.ledger.Transition(ctx, ledgerdomain.TransitionRequest{
		TransactionID:  tx.ID,
		From:           []ledgerdomain.Status{ledgerdomain.StatusPending},
		To:             ledgerdomain.StatusSucceeded,
		CausingEventID: "evt_paid",
		CardLast4:      "4242",
		CardBrand:      "visa",
	})
	require.NoError(t, err)
	return res.Transaction
}

var numberPattern = regexp.MustCompile(`^RCP-\d{6}-\d{4}$`)

func TestGenerateSMSReceipt(t *testing.T) {
	env := newTestEnv(t)
	tx := env.paidTransaction(t)

	receipt, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodSMS})
	require.NoError(t, err)
	assert.Regexp(t, numberPattern, receipt.Number)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, "ATXid_9", receipt.ProviderMessageID)
	require.Equal(t, []string{"+254712345678"}, env.notifier.phones)
	assert.Contains(t, env.notifier.bodies[0], receipt.Number)
	assert.Contains(t, env.notifier.bodies[0], "Mama Mboga")

	stored, err := env.svc.Get(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered)
	assert.Equal(t, "ATXid_9", stored.ProviderMessageID)
}

func TestGenerateSMSFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.outcome = notification.Outcome{Error: "InsufficientBalance"}
	tx := env.paidTransaction(t)

	receipt, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodSMS, Recipient: "0722 000 111"})
	require.NoError(t, err)
	assert.False(t, receipt.Delivered)
	assert.Equal(t, "InsufficientBalance", receipt.DeliveryError)
	assert.Equal(t, []string{"+254722000111"}, env.notifier.phones)
}

func TestGeneratePrintWritesPDF(t *testing.T) {
	env := newTestEnv(t)
	tx := env.paidTransaction(t)

	receipt, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodPrint})
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, filepath.Join(env.dir, "receipt_"+receipt.Number+".pdf"), receipt.PDFPath)

	content, err := os.ReadFile(receipt.PDFPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), receipt.Number)
	assert.Equal(t, "Paid via Visa ****4242", env.pdf.last.PaidWith)
	assert.Equal(t, "2026-03-01 09:00", env.pdf.last.IssuedAt)
	assert.Equal(t, "Thank you for your business!", env.pdf.last.Footer)
	assert.Empty(t, env.notifier.phones)
}

func TestGenerateEmailReceipt(t *testing.T) {
	env := newTestEnv(t)
	tx := env.paidTransaction(t)

	receipt, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodEmail})
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, []string{"amina@example.com"}, env.email.to)
	assert.Equal(t, receipt.Number, env.email.data["receipt_number"])
	assert.Equal(t, "Mama Mboga", env.email.data["business_name"])
}

func TestGenerateEmailFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.email.err = errors.New("smtp: 550 mailbox unavailable")
	tx := env.paidTransaction(t)

	receipt, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodEmail})
	require.NoError(t, err)
	assert.False(t, receipt.Delivered)
	assert.Contains(t, receipt.DeliveryError, "550")
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.paidTransaction(t)

	pending, err := env.ledger.Create(ctx, ledgerdomain.CreateTransactionRequest{
		Amount:        money.Money{Amount: 100, Currency: "kes"},
		PaymentMethod: ledgerdomain.PaymentMethodCard,
	})
	require.NoError(t, err)

	_, err = env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: tx.ID, Method: "fax"})
	require.ErrorIs(t, err, domain.ErrInvalidMethod)

	_, err = env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: pending.ID, Method: domain.MethodPrint})
	require.ErrorIs(t, err, domain.ErrTransactionNotPaid)

	_, err = env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodSMS, Recipient: "12"})
	require.ErrorIs(t, err, domain.ErrInvalidRecipient)

	_, err = env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodEmail, Recipient: "not-an-address"})
	require.ErrorIs(t, err, domain.ErrInvalidRecipient)

	_, err = env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: snowflake.ID(42), Method: domain.MethodSMS})
	require.ErrorIs(t, err, ledgerdomain.ErrNotFound)
}

func TestGenerateRetriesNumberCollision(t *testing.T) {
	env := newTestEnv(t)
	tx := env.paidTransaction(t)
	numbers := []string{"RCP-260301-0001", "RCP-260301-0001", "RCP-260301-0002"}
	env.svc.nextNumber = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	first, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodPrint})
	require.NoError(t, err)
	second, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodPrint})
	require.NoError(t, err)
	assert.Equal(t, "RCP-260301-0001", first.Number)
	assert.Equal(t, "RCP-260301-0002", second.Number)
}

func TestGenerateGivesUpWhenNumbersExhausted(t *testing.T) {
	env := newTestEnv(t)
	tx := env.paidTransaction(t)
	env.svc.nextNumber = func(time.Time) string { return "RCP-260301-7777" }

	_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodPrint})
	require.NoError(t, err)
	_, err = env.svc.Generate(context.Background(), domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodPrint})
	require.ErrorIs(t, err, domain.ErrNumberExhausted)
}

func TestListAndRenderPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.paidTransaction(t)

	a, err := env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodSMS})
	require.NoError(t, err)
	b, err := env.svc.Generate(ctx, domain.GenerateRequest{TransactionID: tx.ID, Method: domain.MethodEmail})
	require.NoError(t, err)

	items, err := env.svc.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)

	doc, receipt, err := env.svc.RenderPDF(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Number, receipt.Number)
	assert.Contains(t, string(doc), b.Number)

	_, _, err = env.svc.RenderPDF(ctx, snowflake.ID(7))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaidWith(t *testing.T) {
	assert.Equal(t, "Paid via Card", paidWith(ledgerdomain.Transaction{}))
	assert.Equal(t, "Paid via Mastercard ****4444", paidWith(ledgerdomain.Transaction{CardLast4: "4444", CardBrand: "mastercard"}))
	assert.Equal(t, "Paid via Card ****1111", paidWith(ledgerdomain.Transaction{CardLast4: "1111"}))
}
