package venue

import (
	"context"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/venue/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("venue",
		fx.Provide(
			service.NewClient,
			func(c *service.Client) service.Venue { return c },
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, cfg *config.Config, ctx context.Context) {
			if !cfg.Bridge.TickStream {
				return
			}
			symbols := make([]string, 0, len(cfg.Instruments))
			for _, inst := range cfg.Instruments {
				symbols = append(symbols, inst.Symbol)
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go c.RunTickStream(ctx, symbols)
					return nil
				},
			})
		}),
	)
}
