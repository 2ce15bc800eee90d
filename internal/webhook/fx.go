package webhook

import (
	"github.com/smallbiznis/paydesk/internal/webhook/repository"
	"github.com/smallbiznis/paydesk/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
