package stripe

import (
	"github.com/smallbiznis/paydesk/internal/clock"
	"github.com/smallbiznis/paydesk/internal/config"
	"github.com/smallbiznis/paydesk/internal/gateway"
	obsmetrics "github.com/smallbiznis/paydesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config     config.Config
	Clock      clock.Clock
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func ProvideClient(p Params) gateway.Client {
	cfg := ConfigFrom(p.Config)
	if cfg.SecretKey == "" {
		p.Log.Warn("stripe secret key not configured; gateway calls will fail")
	}
	return NewClient(cfg, nil, p.Log, p.ObsMetrics)
}

func ProvideVerifier(p Params) gateway.Verifier {
	return NewVerifier(ConfigFrom(p.Config), p.Clock)
}

var Module = fx.Module("gateway.stripe",
	fx.Provide(ProvideClient),
	fx.Provide(ProvideVerifier),
)
