package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paydesk/internal/gateway"
	idempotencydomain "github.com/smallbiznis/paydesk/internal/idempotency/domain"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	"github.com/smallbiznis/paydesk/internal/money"
	paymentdomain "github.com/smallbiznis/paydesk/internal/payment/domain"
	paymentlinkdomain "github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	receiptdomain "github.com/smallbiznis/paydesk/internal/receipt/domain"
	webhookdomain "github.com/smallbiznis/paydesk/internal/webhook/domain"
	dbpkg "github.com/smallbiznis/paydesk/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError turns a domain error into a status and a stable error type.
// Processor text never reaches the response; unknown errors collapse into
// internal_error.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *paymentdomain.ValidationError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   fieldErr.Field,
					Code:    "invalid_" + fieldErr.Field,
					Message: fieldErr.Reason,
				},
			},
		}
	}

	if code := validationErrorCode(err); code != "" {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, gateway.ErrDeclined):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "card_declined",
			Message: "the card was declined",
		}
	case errors.Is(err, gateway.ErrRejected):
		return http.StatusBadRequest, errorPayload{
			Type:    "payment_rejected",
			Message: "the payment was rejected by the processor",
		}
	case errors.Is(err, gateway.ErrUnavailable),
		errors.Is(err, gateway.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment processor unavailable, retry with the same idempotency key",
		}
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "invalid signature",
		}
	case errors.Is(err, gateway.ErrMalformedPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "malformed_payload",
			Message: "malformed payload",
		}
	case errors.Is(err, paymentlinkdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "link_not_found",
			Message: "payment link not found",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentlinkdomain.ErrAlreadyPaid):
		return http.StatusConflict, errorPayload{
			Type:    "already_paid",
			Message: "payment link already paid",
		}
	case errors.Is(err, paymentlinkdomain.ErrExpired):
		return http.StatusGone, errorPayload{
			Type:    "link_expired",
			Message: "payment link expired",
		}
	case errors.Is(err, paymentdomain.ErrNotRefundable):
		return http.StatusConflict, errorPayload{
			Type:    "not_refundable",
			Message: "transaction cannot be refunded",
		}
	case errors.Is(err, ledgerdomain.ErrIllegalTransition):
		return http.StatusConflict, errorPayload{
			Type:    "illegal_transition",
			Message: "transaction is not in a state that allows this change",
		}
	case errors.Is(err, idempotencydomain.ErrKeyReused):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "idempotency_key_reused",
			Message: "idempotency key was used with a different request",
		}
	case errors.Is(err, idempotencydomain.ErrInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "request_in_progress",
			Message: "a request with this idempotency key is still in progress",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client saw
// plus a finer code for validation failures.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if kind, ok := gateway.KindOf(err); ok {
		code = "gateway_" + string(kind)
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, receiptdomain.ErrNotFound),
		errors.Is(err, idempotencydomain.ErrNotFound):
		return true
	default:
		return false
	}
}

func isUnavailableError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, webhookdomain.ErrUnavailable),
		errors.Is(err, paymentdomain.ErrLedgerWrite),
		errors.Is(err, receiptdomain.ErrNumberExhausted):
		return true
	default:
		return dbpkg.IsUnavailable(err)
	}
}

var validationSentinels = []error{
	ErrInvalidRequest,
	ledgerdomain.ErrInvalidID,
	ledgerdomain.ErrInvalidStatus,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidCurrency,
	paymentlinkdomain.ErrInvalidAmount,
	paymentlinkdomain.ErrInvalidCurrency,
	paymentlinkdomain.ErrInvalidPhone,
	paymentlinkdomain.ErrInvalidExpiry,
	paymentlinkdomain.ErrInvalidRequest,
	receiptdomain.ErrInvalidMethod,
	receiptdomain.ErrInvalidRecipient,
	receiptdomain.ErrTransactionNotPaid,
	idempotencydomain.ErrInvalidKey,
	money.ErrInvalidCurrency,
	money.ErrNegativeAmount,
	money.ErrCurrencyMismatch,
}

func validationErrorCode(err error) string {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ""
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_delivery_method":
		return "method"
	case "invalid_idempotency_key":
		return "Idempotency-Key"
	case "invalid_transaction_id", "transaction_not_paid":
		return "transaction_id"
	case "negative_amount":
		return "amount"
	case "currency_mismatch":
		return "currency"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "transaction_not_paid":
		return "transaction has not been paid"
	default:
		return "invalid value"
	}
}
