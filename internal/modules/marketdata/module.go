package marketdata

import (
	"context"

	"go.uber.org/fx"

	"trade_engine/internal/modules/marketdata/service"
	"trade_engine/internal/modules/marketdata/service/pg/bars"
	"trade_engine/pkg/db"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			func(tx db.TxManager) service.BarStore { return bars.New(tx) },
			service.NewSynchronizer,
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lc fx.Lifecycle, sync *service.Synchronizer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			sync.SeedCursors(startCtx)
			sync.Backfill(startCtx)
			go func() {
				defer close(done)
				sync.Run(ctx)
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
