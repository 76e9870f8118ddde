package notify

import (
	"go.uber.org/fx"

	"trade_engine/internal/modules/notify/service"
	strategy "trade_engine/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(service.NewTelegram),
		fx.Invoke(func(strategies *strategy.Manager, t *service.Telegram) {
			strategies.AddSignalHandler(t.NotifySignal)
		}),
	)
}
