package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
	obscontext "github.com/smallbiznis/paydesk/internal/observability/context"
	paymentdomain "github.com/smallbiznis/paydesk/internal/payment/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createPaymentRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	// IdempotencyKey in the body is accepted when the header is absent.
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount, err := money.New(req.Amount, req.Currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key != "" {
		c.Set(obscontext.KeyIdempotencyKey, key)
	}

	resp, err := s.paymentSvc.CreatePayment(c.Request.Context(), paymentdomain.CreatePaymentRequest{
		Amount:      amount,
		Description: strings.TrimSpace(req.Description),
		Customer: paymentdomain.CustomerContact{
			Email: strings.TrimSpace(req.CustomerEmail),
			Phone: strings.TrimSpace(req.CustomerPhone),
		},
		IdempotencyKey: key,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obscontext.KeyTransactionID, resp.TransactionID.String())
	c.Set(obscontext.KeyReplayed, resp.Replayed)

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListTransactions(c *gin.Context) {
	page, err := parsePositiveInt(c.Query("page"), 1)
	if err != nil {
		AbortWithError(c, newValidationError("page", "invalid_page", "invalid page"))
		return
	}
	perPage, err := parsePositiveInt(c.Query("per_page"), defaultPerPage)
	if err != nil {
		AbortWithError(c, newValidationError("per_page", "invalid_per_page", "invalid per_page"))
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListTransactionsRequest{
		Page:    page,
		PerPage: clampPerPage(perPage),
		Status:  strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	tx, err := s.ledgerSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.ledgerSvc.History(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"transaction": tx,
		"history":     history,
	}})
}

type refundRequest struct {
	// Amount in minor units; omitted or zero refunds in full.
	Amount int64 `json:"amount"`
}

func (s *Server) RefundTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount < 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}

	resp, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundRequest{
		TransactionID: id,
		Amount:        req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SyncTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.paymentSvc.SyncStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTransactionReceipts(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	receipts, err := s.receiptSvc.ListByTransaction(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipts})
}
