package config

import "go.uber.org/fx"

// Module регистрируем конфиги как fx-провайдеры.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			func(cfg *Config) (*StrategiesConfig, error) {
				return LoadStrategies(cfg.StrategiesFile)
			},
		),
	)
}
