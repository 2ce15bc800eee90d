package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paydesk/internal/money"
	paymentlinkdomain "github.com/smallbiznis/paydesk/internal/paymentlink/domain"
)

type createPaymentLinkRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerPhone string `json:"customer_phone"`
	Description   string `json:"description"`
	ExpiresInHrs  int    `json:"expires_in_hours"`
	// SendSMS defaults to true when omitted.
	SendSMS *bool `json:"send_sms"`
}

func (s *Server) CreatePaymentLink(c *gin.Context) {
	var req createPaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	currency := req.Currency
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}
	amount, err := money.New(req.Amount, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if req.ExpiresInHrs < 0 {
		AbortWithError(c, paymentlinkdomain.ErrInvalidExpiry)
		return
	}

	send := true
	if req.SendSMS != nil {
		send = *req.SendSMS
	}

	resp, err := s.linkSvc.CreateLink(c.Request.Context(), paymentlinkdomain.CreateLinkRequest{
		Amount:           amount,
		Phone:            strings.TrimSpace(req.CustomerPhone),
		Description:      strings.TrimSpace(req.Description),
		Expiry:           time.Duration(req.ExpiresInHrs) * time.Hour,
		SendNotification: send,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPaymentLink(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	link, err := s.linkSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": link})
}

func (s *Server) ResendPaymentLink(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.linkSvc.Resend(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
