package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	configModule "trade_engine/internal/modules/config"
	"trade_engine/internal/modules/marketdata"
	"trade_engine/internal/modules/notify"
	"trade_engine/internal/modules/postgres"
	"trade_engine/internal/modules/strategy"
	strategyService "trade_engine/internal/modules/strategy/service"
	"trade_engine/internal/modules/trade"
	"trade_engine/internal/modules/venue"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

const serviceName = "trade_engine"

func main() {
	logger.SetServiceName(serviceName)
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		configModule.Module(),
		postgres.Module(),
		venue.Module(),
		marketdata.Module(),
		strategy.Module(),
		trade.Module(),
		notify.Module(),
		fx.Invoke(initTracing),
		fx.Invoke(warmup),
	)
	app.Run()
}

func initTracing(lc fx.Lifecycle, cfg *configModule.Config) error {
	if cfg.Jaeger.Host == "" {
		return nil
	}
	tracing.SetServiceName(serviceName)
	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Jaeger.Host,
		Port: cfg.Jaeger.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	return nil
}

// warmup прогоняет стратегии по последним сохранённым свечам сразу
// после бэкфила, не дожидаясь первой новой свечи.
func warmup(lc fx.Lifecycle, strategies *strategyService.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			strategies.EvaluateLatest(ctx)
			return nil
		},
	})
}
