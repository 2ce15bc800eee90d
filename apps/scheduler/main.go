package main

import (
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/idempotency"
	"github.com/smallbiznis/paydesk/internal/observability"
	"github.com/smallbiznis/paydesk/internal/ratelimit"
	"github.com/smallbiznis/paydesk/internal/scheduler"
	"github.com/smallbiznis/paydesk/pkg/db"
	"go.uber.org/fx"
)

// Runs housekeeping jobs without serving HTTP. The Redis lock keeps it safe to
// run next to API replicas that also schedule the same jobs.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		ratelimit.Module,

		idempotency.Module,
		scheduler.Module,

		// No server module!
	)
	app.Run()
}
