package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/gateway"
	"github.com/smallbiznis/paydesk/internal/gateway/gatewaytest"
	"github.com/smallbiznis/paydesk/internal/money"
	"github.com/smallbiznis/paydesk/internal/notification"
	"github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	"github.com/smallbiznis/paydesk/internal/paymentlink/repository"
	"github.com/smallbiznis/paydesk/pkg/db/dbtest"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	outcome notification.Outcome
	sent    []string
}

func (n *recordingNotifier) Notify(ctx context.Context, kind, phone, body string) notification.Outcome {
	n.sent = append(n.sent, phone+"|"+body)
	return n.outcome
}

type testEnv struct {
	svc      domain.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	gateway  *gatewaytest.Client
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	gw := new(gatewaytest.Client)
	notifier := &recordingNotifier{outcome: notification.Outcome{Success: true, ProviderMessageID: "ATXid_1"}}

	cfg := config.Config{}
	cfg.Stripe.SuccessURL = "https://shop.example/ok"
	cfg.Stripe.CancelURL = "https://shop.example/cancel"
	cfg.SMS.DefaultCountryCode = "254"

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Config:   cfg,
		Policy:   config.StaticPolicy(config.DefaultPaymentPolicy()),
		Repo:     repository.Provide(),
		Gateway:  gw,
		Notifier: notifier,
	})
	return testEnv{svc: svc, db: db, clock: clk, gateway: gw, notifier: notifier}
}

func (e testEnv) expectSession(ref string) {
	e.gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req gateway.CheckoutRequest) bool {
		return req.Metadata[gateway.MetadataPaymentLinkID] != "" &&
			strings.HasPrefix(req.IdempotencyKey, "link:") &&
			req.SuccessURL == "https://shop.example/ok"
	})).Return(gateway.CheckoutSession{Ref: ref, URL: "https://checkout.stripe.com/c/" + ref}, nil).Once()
}

func (e testEnv) createLink(t *testing.T, ref string) domain.CreateLinkResponse {
	t.Helper()
	e.expectSession(ref)
	resp, err := e.svc.CreateLink(context.Background(), domain.CreateLinkRequest{
		Amount:      money.Money{Amount: 150000, Currency: "kes"},
		Phone:       "0712 345 678",
		Description: "Table 4",
	})
	require.NoError(t, err)
	return resp
}

func TestCreateLinkSendsNotification(t *testing.T) {
	env := newTestEnv(t)
	env.expectSession("cs_1")

	resp, err := env.svc.CreateLink(context.Background(), domain.CreateLinkRequest{
		Amount:           money.Money{Amount: 150000, Currency: "KES"},
		Phone:            "0712345678",
		Description:      "Table 4",
		SendNotification: true,
	})
	require.NoError(t, err)
	require.True(t, resp.Notified)
	require.Equal(t, "https://checkout.stripe.com/c/cs_1", resp.URL)
	require.Equal(t, env.clock.Now().Add(24*time.Hour), resp.ExpiresAt)

	require.Len(t, env.notifier.sent, 1)
	require.True(t, strings.HasPrefix(env.notifier.sent[0], "+254712345678|Payment Request: "))
	require.Contains(t, env.notifier.sent[0], "Link expires in 24 hours.")

	link, err := env.svc.Get(context.Background(), resp.LinkID)
	require.NoError(t, err)
	require.Equal(t, "cs_1", link.SessionRef)
	require.Equal(t, "KES", link.Currency)
	require.True(t, link.SMSSent)
	require.Equal(t, "ATXid_1", link.SMSMessageID)
	require.Equal(t, 1, link.SMSAttempts)
	require.False(t, link.Paid)
	env.gateway.AssertExpectations(t)
}

func TestCreateLinkKeepsLinkWhenNotificationFails(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.outcome = notification.Outcome{Error: "InvalidPhoneNumber"}
	env.expectSession("cs_2")

	resp, err := env.svc.CreateLink(context.Background(), domain.CreateLinkRequest{
		Amount:           money.Money{Amount: 500, Currency: "USD"},
		Phone:            "+14155550100",
		SendNotification: true,
	})
	require.NoError(t, err)
	require.False(t, resp.Notified)
	require.Equal(t, "InvalidPhoneNumber", resp.NotifyError)

	link, err := env.svc.FindBySessionRef(context.Background(), "cs_2")
	require.NoError(t, err)
	require.False(t, link.SMSSent)
	require.Equal(t, "InvalidPhoneNumber", link.SMSLastError)
}

func TestCreateLinkValidation(t *testing.T) {
	cases := []struct {
		name string
		req  domain.CreateLinkRequest
		want error
	}{
		{name: "zero amount", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 0, Currency: "USD"}, Phone: "+14155550100"}, want: domain.ErrInvalidAmount},
		{name: "above ceiling", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 100_000_000, Currency: "USD"}, Phone: "+14155550100"}, want: domain.ErrInvalidAmount},
		{name: "currency not allowed", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 100, Currency: "JPY"}, Phone: "+14155550100"}, want: domain.ErrInvalidCurrency},
		{name: "bad phone", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 100, Currency: "USD"}, Phone: "call me"}, want: domain.ErrInvalidPhone},
		{name: "expiry too short", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 100, Currency: "USD"}, Phone: "+14155550100", Expiry: 10 * time.Minute}, want: domain.ErrInvalidExpiry},
		{name: "expiry too long", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 100, Currency: "USD"}, Phone: "+14155550100", Expiry: 48 * time.Hour}, want: domain.ErrInvalidExpiry},
		{name: "long description", req: domain.CreateLinkRequest{Amount: money.Money{Amount: 100, Currency: "USD"}, Phone: "+14155550100", Description: strings.Repeat("x", 501)}, want: domain.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.CreateLink(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
			env.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateLinkGatewayFailureStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(gateway.CheckoutSession{}, &gateway.Error{Kind: gateway.KindUnavailable}).Once()

	_, err := env.svc.CreateLink(context.Background(), domain.CreateLinkRequest{
		Amount: money.Money{Amount: 100, Currency: "USD"},
		Phone:  "+14155550100",
	})
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	var count int64
	require.NoError(t, env.db.Model(&domain.PaymentLink{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestResend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.createLink(t, "cs_3")

	out, err := env.svc.Resend(ctx, resp.LinkID)
	require.NoError(t, err)
	require.True(t, out.Notified)
	require.Equal(t, "ATXid_1", out.MessageID)

	_, err = env.svc.Resend(ctx, snowflake.ID(12345))
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, env.db.Model(&domain.PaymentLink{}).Where("id = ?", resp.LinkID).
		Updates(map[string]any{"paid": true, "transaction_id": int64(99)}).Error)
	_, err = env.svc.Resend(ctx, resp.LinkID)
	require.ErrorIs(t, err, domain.ErrAlreadyPaid)

	// Expired wins over paid.
	env.clock.Advance(25 * time.Hour)
	_, err = env.svc.Resend(ctx, resp.LinkID)
	require.ErrorIs(t, err, domain.ErrExpired)
}

func TestResendExpiredUnpaidLink(t *testing.T) {
	env := newTestEnv(t)
	resp := env.createLink(t, "cs_4")

	env.clock.Set(resp.ExpiresAt)
	_, err := env.svc.Resend(context.Background(), resp.LinkID)
	require.ErrorIs(t, err, domain.ErrExpired)
	require.Empty(t, env.notifier.sent)
}
