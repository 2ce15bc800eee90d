package sideeffect

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("sideeffect.pool",
	fx.Provide(NewPool),
	fx.Provide(func(p *Pool) Dispatcher { return p }),
	fx.Invoke(runPool),
)

func runPool(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			pool.Start()
			return nil
		},
		OnStop: pool.Stop,
	})
}
