package strategy

import (
	"go.uber.org/fx"

	marketdata "trade_engine/internal/modules/marketdata/service"
	"trade_engine/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(service.NewManager),
		fx.Invoke(subscribe),
	)
}

// subscribe подключает менеджер стратегий к потоку закрытых свечей.
func subscribe(sync *marketdata.Synchronizer, m *service.Manager) {
	sync.AddBarListener(m.OnBar)
}
