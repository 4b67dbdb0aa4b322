package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(
		NewOutbox,
		NewLogSink,
		NewDispatcher,
	),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, dispatcher *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			dispatcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			dispatcher.Stop()
			return nil
		},
	})
}
