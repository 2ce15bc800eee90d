package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/paydesk/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	messagingPath    = "/version1/messaging"
	statusSuccess    = "Success"
	maxResponseBytes = 64 << 10
)

type Config struct {
	Username       string
	APIKey         string
	SenderID       string
	BaseURL        string
	DefaultCountry string
	Timeout        time.Duration
}

// AfricasTalking sends messages through the Africa's Talking bulk SMS API.
type AfricasTalking struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewAfricasTalking(cfg Config, httpClient *http.Client, log *zap.Logger) *AfricasTalking {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.africastalking.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AfricasTalking{cfg: cfg, http: httpClient, log: log.Named("providers.sms")}
}

type messagingResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			Cost       string `json:"cost"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (p *AfricasTalking) Send(ctx context.Context, phone string, message string) (Result, error) {
	phone = NormalizePhone(phone, p.cfg.DefaultCountry)
	if len(phone) < 8 {
		return Result{}, ErrInvalidRecipient
	}

	ctx, span := tracing.Tracer("sms").Start(ctx, "sms.send")
	defer span.End()
	span.SetAttributes(attribute.String("sms.provider", "africastalking"))

	form := url.Values{}
	form.Set("username", p.cfg.Username)
	form.Set("to", phone)
	form.Set("message", message)
	if p.cfg.SenderID != "" {
		form.Set("from", p.cfg.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+messagingPath, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("apiKey", p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "sms_transport_error")
		return Result{}, fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("sms response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "sms_http_error")
		return Result{}, fmt.Errorf("sms provider returned %d", resp.StatusCode)
	}

	var parsed messagingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("sms response: %w", err)
	}
	recipients := parsed.SMSMessageData.Recipients
	if len(recipients) == 0 {
		p.log.Warn("unexpected sms response", zap.String("message", parsed.SMSMessageData.Message))
		return Result{}, fmt.Errorf("sms provider accepted no recipients: %s", parsed.SMSMessageData.Message)
	}

	recipient := recipients[0]
	if recipient.Status != statusSuccess {
		span.SetStatus(codes.Error, recipient.Status)
		return Result{}, fmt.Errorf("sms rejected: %s", recipient.Status)
	}
	return Result{MessageID: recipient.MessageID, Cost: recipient.Cost}, nil
}
