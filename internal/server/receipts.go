package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	receiptdomain "github.com/smallbiznis/paydesk/internal/receipt/domain"
)

type createReceiptRequest struct {
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
	Recipient     string `json:"recipient"`
}

func (s *Server) CreateReceipt(c *gin.Context) {
	var req createReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txID, ok := parseSnowflakeID(req.TransactionID)
	if !ok {
		AbortWithError(c, newValidationError("transaction_id", "invalid_transaction_id", "invalid transaction_id"))
		return
	}

	receipt, err := s.receiptSvc.Generate(c.Request.Context(), receiptdomain.GenerateRequest{
		TransactionID: txID,
		Method:        receiptdomain.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		Recipient:     strings.TrimSpace(req.Recipient),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": receipt})
}

func (s *Server) GetReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	receipt, err := s.receiptSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) GetReceiptPDF(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	pdf, receipt, err := s.receiptSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "receipt_"+receipt.Number+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
