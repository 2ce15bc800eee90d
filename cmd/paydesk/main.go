package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/gateway/stripe"
	"github.com/smallbiznis/paydesk/internal/idempotency"
	"github.com/smallbiznis/paydesk/internal/ledger"
	"github.com/smallbiznis/paydesk/internal/migration"
	"github.com/smallbiznis/paydesk/internal/notification"
	"github.com/smallbiznis/paydesk/internal/observability"
	"github.com/smallbiznis/paydesk/internal/payment"
	"github.com/smallbiznis/paydesk/internal/paymentlink"
	"github.com/smallbiznis/paydesk/internal/providers"
	"github.com/smallbiznis/paydesk/internal/ratelimit"
	"github.com/smallbiznis/paydesk/internal/receipt"
	"github.com/smallbiznis/paydesk/internal/scheduler"
	"github.com/smallbiznis/paydesk/internal/server"
	"github.com/smallbiznis/paydesk/internal/sideeffect"
	"github.com/smallbiznis/paydesk/internal/webhook"
	"github.com/smallbiznis/paydesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Outbound collaborators
		stripe.Module,
		providers.Module,
		notification.Module,

		// Functional Domains
		ledger.Module,
		idempotency.Module,
		payment.Module,
		paymentlink.Module,
		receipt.Module,
		sideeffect.Module,
		webhook.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
