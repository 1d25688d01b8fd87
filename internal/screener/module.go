package screener

import (
	"context"

	"go.uber.org/fx"
)

const moduleName = "screener"

// Module provides the service. Its scheduler and metrics server only run in
// apps that also include Runner.
var Module = fx.Module(moduleName,
	fx.Provide(NewService),
	fx.Invoke(func(lc fx.Lifecycle, service *Service) {
		lc.Append(fx.StopHook(service.WaitBackground))
	}),
)

var Runner = fx.Module(moduleName+"-runner",
	fx.Invoke(registerMetricsServer),
	fx.Invoke(func(lc fx.Lifecycle, service *Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return service.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return service.Stop()
			},
		})
	}),
)
