package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "succeeded"),
		attribute.String("transaction_id", "123"),
		attribute.String("event_type", "payment_intent.succeeded"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	require.Contains(t, keys, attribute.Key("outcome"))
	require.Contains(t, keys, attribute.Key("event_type"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordPayment(context.Background(), "card", "succeeded")
		m.RecordReconciliationGap(context.Background(), "refund")
	})
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "paydesk-test"}, noop.NewMeterProvider())
	require.NoError(t, err)
	require.NotPanics(t, func() {
		m.RecordWebhookEvent(context.Background(), "stripe", "charge.refunded", "applied")
	})
}
