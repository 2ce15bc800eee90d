package paymentlink

import (
	"github.com/smallbiznis/paydesk/internal/paymentlink/repository"
	"github.com/smallbiznis/paydesk/internal/paymentlink/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentlink.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
