package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"trade_engine/internal/helper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	databaseDSNENV    = "DATABASE_DSN"
	bridgeAddrENV     = "BRIDGE_ADDR"
	bridgeTokenENV    = "BRIDGE_TOKEN"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
)

type TimeframeConfig struct {
	Name        string `mapstructure:"name"`
	HistorySize int    `mapstructure:"history_size"`
}

type InstrumentConfig struct {
	Symbol      string            `mapstructure:"symbol"`
	Description string            `mapstructure:"description"`
	PointSize   float64           `mapstructure:"point_size"` // fallback если площадка не отдала правила
	Timeframes  []TimeframeConfig `mapstructure:"timeframes"`
}

type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RiskConfig неизменяем на время жизни процесса.
type RiskConfig struct {
	RiskPct             float64       `mapstructure:"risk_pct"` // % эквити на сделку по стопу
	MaxTotalPositions   int           `mapstructure:"max_total_positions"`
	TrailingStopEnabled bool          `mapstructure:"trailing_stop_enabled"`
	TrailingATRMult     float64       `mapstructure:"trailing_atr_mult"`
	TrailingATRPeriod   int           `mapstructure:"trailing_atr_period"`
	TrailingFixedPoints float64       `mapstructure:"trailing_fixed_points"` // запасной вариант без ATR
	TrailingInterval    time.Duration `mapstructure:"trailing_interval"`
	TrailingTimeframe   string        `mapstructure:"trailing_timeframe"`
}

type BridgeConfig struct {
	Addr       string        `mapstructure:"addr"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TickStream bool          `mapstructure:"tick_stream"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type JaegerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Config struct {
	Instruments    []InstrumentConfig `mapstructure:"instruments"`
	Sync           SyncConfig         `mapstructure:"sync"`
	Risk           RiskConfig         `mapstructure:"risk"`
	Bridge         BridgeConfig       `mapstructure:"bridge"`
	DB             string             `mapstructure:"db_dsn"`
	Telegram       TelegramConfig     `mapstructure:"telegram"`
	Jaeger         JaegerConfig       `mapstructure:"jaeger"`
	StrategiesFile string             `mapstructure:"strategies_file"`
}

func NewConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("sync.interval", "5s")
	v.SetDefault("sync.retry_delay", "10s")
	v.SetDefault("risk.risk_pct", 1.0)
	v.SetDefault("risk.max_total_positions", 5)
	v.SetDefault("risk.trailing_atr_mult", 2.0)
	v.SetDefault("risk.trailing_atr_period", 14)
	v.SetDefault("risk.trailing_interval", "30s")
	v.SetDefault("risk.trailing_timeframe", "M5")
	v.SetDefault("bridge.timeout", "10s")
	v.SetDefault("strategies_file", "configs/strategies.yaml")

	name := viper.GetString(configFilePathENV)
	if name == "" {
		name = "values_local.yaml"
	}
	v.SetConfigFile("configs/" + name)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	// секреты из окружения имеют приоритет над файлом
	if dsn := viper.GetString(databaseDSNENV); dsn != "" {
		cfg.DB = dsn
	}
	if addr := viper.GetString(bridgeAddrENV); addr != "" {
		cfg.Bridge.Addr = addr
	}
	if token := viper.GetString(bridgeTokenENV); token != "" {
		cfg.Bridge.Token = token
	}
	if token := viper.GetString(tokenTelegramENV); token != "" {
		cfg.Telegram.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает фатальные ошибки конфигурации на старте:
// в рантайме они встретиться уже не могут.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.New("no instruments configured")
	}
	for _, inst := range c.Instruments {
		if inst.Symbol == "" {
			return errors.New("instrument symbol cannot be empty")
		}
		if len(inst.Timeframes) == 0 {
			return errors.Errorf("no timeframes configured for %s", inst.Symbol)
		}
		for _, tf := range inst.Timeframes {
			if helper.TFDuration(tf.Name) == 0 {
				return errors.Errorf("unknown timeframe %q for %s", tf.Name, inst.Symbol)
			}
			if tf.HistorySize <= 0 {
				return errors.Errorf("invalid history size for %s %s: %d", inst.Symbol, tf.Name, tf.HistorySize)
			}
		}
	}
	if c.Sync.Interval <= 0 {
		return errors.Errorf("invalid sync interval: %s", c.Sync.Interval)
	}
	if c.Sync.RetryDelay <= 0 {
		return errors.Errorf("invalid sync retry delay: %s", c.Sync.RetryDelay)
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 100 {
		return errors.Errorf("invalid risk_pct: %.2f", c.Risk.RiskPct)
	}
	if c.Risk.MaxTotalPositions <= 0 {
		return errors.Errorf("invalid max_total_positions: %d", c.Risk.MaxTotalPositions)
	}
	if c.Risk.TrailingStopEnabled {
		if c.Risk.TrailingATRMult <= 0 && c.Risk.TrailingFixedPoints <= 0 {
			return errors.New("trailing stop enabled but neither atr mult nor fixed points set")
		}
		if c.Risk.TrailingInterval <= 0 {
			return errors.Errorf("invalid trailing interval: %s", c.Risk.TrailingInterval)
		}
	}
	if c.Bridge.Addr == "" {
		return errors.New("bridge addr is required")
	}
	return nil
}

// Pairs разворачивает матрицу инструмент×таймфрейм.
// Таймфреймы приводятся к каноническому виду (m5 -> M5).
func (c *Config) Pairs() []Pair {
	var out []Pair
	for _, inst := range c.Instruments {
		for _, tf := range inst.Timeframes {
			out = append(out, Pair{
				Symbol:      inst.Symbol,
				Timeframe:   helper.NormTF(tf.Name),
				HistorySize: tf.HistorySize,
			})
		}
	}
	return out
}

type Pair struct {
	Symbol      string
	Timeframe   string
	HistorySize int
}
