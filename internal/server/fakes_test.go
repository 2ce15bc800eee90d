package server

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paydesk/internal/config"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/observability"
	paymentdomain "github.com/smallbiznis/paydesk/internal/payment/domain"
	paymentlinkdomain "github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	"github.com/smallbiznis/paydesk/internal/ratelimit"
	receiptdomain "github.com/smallbiznis/paydesk/internal/receipt/domain"
	webhookdomain "github.com/smallbiznis/paydesk/internal/webhook/domain"
	"github.com/smallbiznis/paydesk/pkg/db/dbtest"
	"gorm.io/gorm"
)

type fakePaymentService struct {
	createReq  paymentdomain.CreatePaymentRequest
	createResp paymentdomain.CreatePaymentResponse
	createErr  error
	refundReq  paymentdomain.RefundRequest
	refundResp paymentdomain.RefundResponse
	refundErr  error
	syncResp   paymentdomain.SyncResponse
	syncErr    error
}

func (f *fakePaymentService) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.CreatePaymentResponse, error) {
	f.createReq = req
	return f.createResp, f.createErr
}

func (f *fakePaymentService) Refund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.RefundResponse, error) {
	f.refundReq = req
	return f.refundResp, f.refundErr
}

func (f *fakePaymentService) SyncStatus(ctx context.Context, id snowflake.ID) (paymentdomain.SyncResponse, error) {
	return f.syncResp, f.syncErr
}

type fakeLedgerService struct {
	ledgerdomain.Service

	txs     map[snowflake.ID]ledgerdomain.Transaction
	history []ledgerdomain.Transition
	listReq ledgerdomain.ListTransactionsRequest
}

func (f *fakeLedgerService) Get(ctx context.Context, id snowflake.ID) (ledgerdomain.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrNotFound
	}
	return tx, nil
}

func (f *fakeLedgerService) History(ctx context.Context, id snowflake.ID) ([]ledgerdomain.Transition, error) {
	return f.history, nil
}

func (f *fakeLedgerService) List(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	f.listReq = req
	txs := make([]ledgerdomain.Transaction, 0, len(f.txs))
	for _, tx := range f.txs {
		txs = append(txs, tx)
	}
	return ledgerdomain.ListTransactionsResponse{
		Transactions: txs,
		Total:        int64(len(txs)),
		Page:         req.Page,
		PerPage:      req.PerPage,
		Pages:        1,
	}, nil
}

type fakeLinkService struct {
	createReq  paymentlinkdomain.CreateLinkRequest
	createResp paymentlinkdomain.CreateLinkResponse
	resendErr  error
	links      map[snowflake.ID]paymentlinkdomain.PaymentLink
}

func (f *fakeLinkService) CreateLink(ctx context.Context, req paymentlinkdomain.CreateLinkRequest) (paymentlinkdomain.CreateLinkResponse, error) {
	f.createReq = req
	return f.createResp, nil
}

func (f *fakeLinkService) Resend(ctx context.Context, id snowflake.ID) (paymentlinkdomain.ResendResponse, error) {
	if f.resendErr != nil {
		return paymentlinkdomain.ResendResponse{}, f.resendErr
	}
	return paymentlinkdomain.ResendResponse{LinkID: id, Notified: true, MessageID: "ATXid_1"}, nil
}

func (f *fakeLinkService) Get(ctx context.Context, id snowflake.ID) (paymentlinkdomain.PaymentLink, error) {
	link, ok := f.links[id]
	if !ok {
		return paymentlinkdomain.PaymentLink{}, paymentlinkdomain.ErrNotFound
	}
	return link, nil
}

func (f *fakeLinkService) FindBySessionRef(ctx context.Context, ref string) (paymentlinkdomain.PaymentLink, error) {
	return paymentlinkdomain.PaymentLink{}, paymentlinkdomain.ErrNotFound
}

type fakeReceiptService struct {
	generateReq receiptdomain.GenerateRequest
	generateErr error
	receipts    map[snowflake.ID]receiptdomain.Receipt
}

func (f *fakeReceiptService) Generate(ctx context.Context, req receiptdomain.GenerateRequest) (receiptdomain.Receipt, error) {
	f.generateReq = req
	if f.generateErr != nil {
		return receiptdomain.Receipt{}, f.generateErr
	}
	return receiptdomain.Receipt{ID: 77, Number: "RCP-260301-0001", TransactionID: req.TransactionID, Method: req.Method}, nil
}

func (f *fakeReceiptService) Get(ctx context.Context, id snowflake.ID) (receiptdomain.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok {
		return receiptdomain.Receipt{}, receiptdomain.ErrNotFound
	}
	return r, nil
}

func (f *fakeReceiptService) ListByTransaction(ctx context.Context, txID snowflake.ID) ([]receiptdomain.Receipt, error) {
	out := []receiptdomain.Receipt{}
	for _, r := range f.receipts {
		if r.TransactionID == txID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReceiptService) RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, receiptdomain.Receipt, error) {
	r, err := f.Get(ctx, id)
	if err != nil {
		return nil, receiptdomain.Receipt{}, err
	}
	return []byte("%PDF-1.4 fake"), r, nil
}

type fakeWebhookService struct {
	payload   []byte
	signature string
	result    webhookdomain.Result
	err       error
}

func (f *fakeWebhookService) Ingest(ctx context.Context, payload []byte, signatureHeader string) (webhookdomain.Result, error) {
	f.payload = payload
	f.signature = signatureHeader
	return f.result, f.err
}

type testEnv struct {
	engine   *gin.Engine
	payments *fakePaymentService
	ledger   *fakeLedgerService
	links    *fakeLinkService
	receipts *fakeReceiptService
	webhooks *fakeWebhookService
	db       *gorm.DB
}

func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		engine:   NewEngine(observability.Config{}, nil),
		payments: &fakePaymentService{},
		ledger:   &fakeLedgerService{txs: map[snowflake.ID]ledgerdomain.Transaction{}},
		links:    &fakeLinkService{links: map[snowflake.ID]paymentlinkdomain.PaymentLink{}},
		receipts: &fakeReceiptService{receipts: map[snowflake.ID]receiptdomain.Receipt{}},
		webhooks: &fakeWebhookService{},
		db:       dbtest.Open(t),
	}

	NewServer(ServerParams{
		Gin:        env.engine,
		Cfg:        config.Config{Environment: "test"},
		DB:         env.db,
		PaymentSvc: env.payments,
		LedgerSvc:  env.ledger,
		LinkSvc:    env.links,
		ReceiptSvc: env.receipts,
		WebhookSvc: env.webhooks,
		Limiter:    limiter,
	})
	return env
}
