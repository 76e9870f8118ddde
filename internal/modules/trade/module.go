package trade

import (
	"context"

	"go.uber.org/fx"

	strategy "trade_engine/internal/modules/strategy/service"
	"trade_engine/internal/modules/trade/service"
)

func Module() fx.Option {
	return fx.Module("trade",
		fx.Provide(service.NewManager),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lc fx.Lifecycle, m *service.Manager, strategies *strategy.Manager) {
	strategies.AddSignalHandler(m.ProcessSignal)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			m.RefreshBook(startCtx)
			go func() {
				defer close(done)
				m.RunTrailing(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
