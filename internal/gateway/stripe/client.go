package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/paydesk/internal/gateway"
	"github.com/smallbiznis/paydesk/internal/money"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	"github.com/smallbiznis/paydesk/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Client talks to the Stripe REST API with form-encoded requests.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewClient(cfg Config, httpClient *http.Client, log *zap.Logger, metrics *obsmetrics.Metrics) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		log:     log.Named("gateway.stripe"),
		metrics: metrics,
	}
}

func (c *Client) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.Amount.Amount, 10))
	values.Set("currency", strings.ToLower(req.Amount.Currency))
	values.Set("automatic_payment_methods[enabled]", "true")
	if desc := strings.TrimSpace(req.Description); desc != "" {
		values.Set("description", desc)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		values.Set("receipt_email", email)
	}
	setMetadata(values, "metadata", req.Metadata)

	var intent stripePaymentIntent
	if err := c.do(ctx, "create_intent", http.MethodPost, "/v1/payment_intents", values, req.IdempotencyKey, &intent); err != nil {
		return gateway.Intent{}, err
	}
	if intent.ID == "" {
		return gateway.Intent{}, gateway.Unavailable(errors.New("stripe_response_invalid"))
	}
	return toIntent(intent), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, ref string) (gateway.Intent, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return gateway.Intent{}, &gateway.Error{Kind: gateway.KindRejected, Code: "missing_reference"}
	}
	query := url.Values{}
	query.Add("expand[]", "latest_charge")

	var intent stripePaymentIntent
	path := "/v1/payment_intents/" + url.PathEscape(ref) + "?" + query.Encode()
	if err := c.do(ctx, "retrieve_intent", http.MethodGet, path, nil, "", &intent); err != nil {
		return gateway.Intent{}, err
	}
	return toIntent(intent), nil
}

func (c *Client) CreateRefund(ctx context.Context, req gateway.RefundRequest) (gateway.Refund, error) {
	values := url.Values{}
	values.Set("payment_intent", req.IntentRef)
	if req.Amount > 0 {
		values.Set("amount", strconv.FormatInt(req.Amount, 10))
	}
	setMetadata(values, "metadata", req.Metadata)

	var refund stripeRefund
	if err := c.do(ctx, "create_refund", http.MethodPost, "/v1/refunds", values, req.IdempotencyKey, &refund); err != nil {
		return gateway.Refund{}, err
	}
	if refund.Status == "failed" || refund.Status == "canceled" {
		return gateway.Refund{}, &gateway.Error{
			Kind:       gateway.KindRejected,
			Code:       "refund_" + refund.Status,
			StatusCode: http.StatusOK,
		}
	}
	return gateway.Refund{Ref: refund.ID, Amount: refund.Amount, Status: refund.Status}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (gateway.CheckoutSession, error) {
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		name = "Payment"
	}
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Amount.Currency))
	values.Set("line_items[0][price_data][product_data][name]", name)
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount.Amount, 10))
	values.Set("line_items[0][quantity]", "1")
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	if !req.ExpiresAt.IsZero() {
		values.Set("expires_at", strconv.FormatInt(req.ExpiresAt.Unix(), 10))
	}
	setMetadata(values, "metadata", req.Metadata)
	// Copy metadata onto the intent so intent events can be traced back.
	setMetadata(values, "payment_intent_data[metadata]", req.Metadata)

	var session stripeCheckoutSession
	if err := c.do(ctx, "create_checkout_session", http.MethodPost, "/v1/checkout/sessions", values, req.IdempotencyKey, &session); err != nil {
		return gateway.CheckoutSession{}, err
	}
	if session.ID == "" || session.URL == "" {
		return gateway.CheckoutSession{}, gateway.Unavailable(errors.New("stripe_response_invalid"))
	}
	return gateway.CheckoutSession{
		Ref:       session.ID,
		URL:       session.URL,
		ExpiresAt: unixTime(session.ExpiresAt),
	}, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, values url.Values, idempotencyKey string, out any) (err error) {
	if c.cfg.SecretKey == "" {
		return gateway.ErrNotConfigured
	}

	ctx, span := tracing.Tracer("stripe").Start(ctx, "stripe."+operation)
	defer func() {
		outcome := "ok"
		if kind, ok := gateway.KindOf(err); ok {
			outcome = string(kind)
		}
		c.metrics.RecordGatewayCall(ctx, providerName, operation, outcome)
		if err != nil {
			span.SetStatus(codes.Error, outcome)
			span.RecordError(tracing.SafeError(err))
		}
		span.End()
	}()

	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("stripe request failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return gateway.Unavailable(err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gateway.Unavailable(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		gerr := classify(resp.StatusCode, payload)
		c.log.Warn("stripe request rejected",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(gerr.Kind)),
			zap.String("code", gerr.Code),
			zap.String("decline_code", gerr.DeclineCode),
			zap.String("request_id", resp.Header.Get("Request-Id")),
		)
		return gerr
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return gateway.Unavailable(err)
	}
	return nil
}

// classify maps an HTTP failure onto the gateway error kinds. Rate limiting
// and server errors are service faults; card errors are declines.
func classify(status int, payload []byte) *gateway.Error {
	var body stripeErrorResponse
	_ = json.Unmarshal(payload, &body)

	gerr := &gateway.Error{
		Code:        strings.TrimSpace(body.Error.Code),
		DeclineCode: strings.TrimSpace(body.Error.DeclineCode),
		Message:     strings.TrimSpace(body.Error.Message),
		StatusCode:  status,
	}
	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		gerr.Kind = gateway.KindUnavailable
	case body.Error.Type == "card_error" || status == http.StatusPaymentRequired:
		gerr.Kind = gateway.KindDeclined
	default:
		gerr.Kind = gateway.KindRejected
	}
	if gerr.Code == "" {
		gerr.Code = strings.TrimSpace(body.Error.Type)
	}
	return gerr
}

func toIntent(pi stripePaymentIntent) gateway.Intent {
	last4, brand := pi.card()
	return gateway.Intent{
		Ref:          pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       gateway.IntentStatus(pi.Status),
		Amount:       money.Money{Amount: pi.Amount, Currency: strings.ToUpper(pi.Currency)},
		CardLast4:    last4,
		CardBrand:    brand,
		Metadata:     pi.Metadata,
	}
}

func setMetadata(values url.Values, prefix string, metadata map[string]string) {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values.Set(prefix+"["+key+"]", metadata[key])
	}
}
