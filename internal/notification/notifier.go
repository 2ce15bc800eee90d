package notification

import (
	"context"
	"fmt"
	"strings"

	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	"github.com/smallbiznis/paydesk/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Outcome is the result of one delivery attempt. Failures are values, never
// errors or panics, so callers can record them next to the business write.
type Outcome struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

type Notifier interface {
	// Notify sends body to phone. kind labels the message for metrics.
	Notify(ctx context.Context, kind, phone, body string) Outcome
}

type Params struct {
	fx.In

	Log        *zap.Logger
	SMS        sms.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type SMSNotifier struct {
	log        *zap.Logger
	sms        sms.Provider
	obsMetrics *obsmetrics.Metrics
}

func NewNotifier(p Params) Notifier {
	return &SMSNotifier{
		log:        p.Log.Named("notification"),
		sms:        p.SMS,
		obsMetrics: p.ObsMetrics,
	}
}

func (n *SMSNotifier) Notify(ctx context.Context, kind, phone, body string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("sms provider panicked", zap.String("kind", kind), zap.Any("panic", r))
			out = Outcome{Error: fmt.Sprintf("provider panic: %v", r)}
		}
		n.obsMetrics.RecordSideEffect(ctx, kind, outcomeLabel(out))
	}()

	if strings.TrimSpace(phone) == "" {
		return Outcome{Error: "recipient phone missing"}
	}
	if n.sms == nil {
		return Outcome{Error: sms.ErrNotConfigured.Error()}
	}

	res, err := n.sms.Send(ctx, phone, body)
	if err != nil {
		n.log.Warn("sms delivery failed", zap.String("kind", kind), zap.Error(err))
		return Outcome{Error: err.Error()}
	}
	n.log.Info("sms delivered", zap.String("kind", kind), zap.String("provider_message_id", res.MessageID))
	return Outcome{Success: true, ProviderMessageID: res.MessageID}
}

func outcomeLabel(out Outcome) string {
	if out.Success {
		return "sent"
	}
	return "failed"
}
