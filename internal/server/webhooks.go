package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paydesk/internal/observability/context"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// HandleStripeWebhook hands the raw body to the reconciler. The body must not
// be re-encoded before verification.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	if res.EventID != "" {
		c.Set(obscontext.KeyWebhookEventID, res.EventID)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "data": res})
}
