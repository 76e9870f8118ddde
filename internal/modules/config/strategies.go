package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// StrategyConfig — описание одного сконфигурированного эвалюатора
// (тип + параметры индикаторов + пороги).
type StrategyConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"` // теговый тип для фабрики
	Enabled     bool     `yaml:"enabled"`
	Instruments []string `yaml:"instruments"`
	Timeframes  []string `yaml:"timeframes"`

	MACD struct {
		Fast   int `yaml:"fast"`
		Slow   int `yaml:"slow"`
		Signal int `yaml:"signal"`
	} `yaml:"macd"`

	RSI struct {
		Period     int     `yaml:"period"`
		Overbought float64 `yaml:"overbought"`
		Oversold   float64 `yaml:"oversold"`
	} `yaml:"rsi"`

	ATR struct {
		Period int `yaml:"period"`
	} `yaml:"atr"`

	// Короткая/средняя/длинная EMA для фильтра тренда.
	EMAs []int `yaml:"emas"`

	RequireAboveLongEMA bool    `yaml:"require_above_long_ema"`
	RapidExit           bool    `yaml:"rapid_exit"`
	MaxSpread           float64 `yaml:"max_spread"`

	VolumeConfirmation struct {
		Enabled   bool    `yaml:"enabled"`
		Threshold float64 `yaml:"threshold"` // во сколько раз объём прошлой свечи должен превышать средний
		Lookback  int     `yaml:"lookback"`
	} `yaml:"volume_confirmation"`

	StopLossATRMult   float64 `yaml:"stop_loss_atr_mult"`
	TakeProfitATRMult float64 `yaml:"take_profit_atr_mult"`
}

type StrategiesConfig struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

func LoadStrategies(path string) (*StrategiesConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open strategies file")
	}
	defer func() {
		_ = file.Close()
	}()

	var cfg StrategiesConfig
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode strategies file")
	}

	for i := range cfg.Strategies {
		cfg.Strategies[i].applyDefaults()
		if err := cfg.Strategies[i].validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (s *StrategyConfig) applyDefaults() {
	if s.MACD.Fast == 0 {
		s.MACD.Fast = 12
	}
	if s.MACD.Slow == 0 {
		s.MACD.Slow = 26
	}
	if s.MACD.Signal == 0 {
		s.MACD.Signal = 9
	}
	if s.RSI.Period == 0 {
		s.RSI.Period = 14
	}
	if s.RSI.Overbought == 0 {
		s.RSI.Overbought = 70
	}
	if s.RSI.Oversold == 0 {
		s.RSI.Oversold = 30
	}
	if s.ATR.Period == 0 {
		s.ATR.Period = 14
	}
	if len(s.EMAs) == 0 {
		s.EMAs = []int{5, 20, 55}
	}
	if s.VolumeConfirmation.Threshold == 0 {
		s.VolumeConfirmation.Threshold = 1.5
	}
	if s.VolumeConfirmation.Lookback == 0 {
		s.VolumeConfirmation.Lookback = 20
	}
	if s.StopLossATRMult == 0 {
		s.StopLossATRMult = 1.5
	}
	if s.TakeProfitATRMult == 0 {
		s.TakeProfitATRMult = 3.0
	}
}

func (s *StrategyConfig) validate() error {
	if s.Name == "" {
		return errors.New("strategy name cannot be empty")
	}
	if s.Type == "" {
		return errors.Errorf("strategy %s: type cannot be empty", s.Name)
	}
	if !s.Enabled {
		return nil
	}
	if len(s.Instruments) == 0 {
		return errors.Errorf("strategy %s: no instruments", s.Name)
	}
	if len(s.Timeframes) == 0 {
		return errors.Errorf("strategy %s: no timeframes", s.Name)
	}
	if s.MACD.Fast >= s.MACD.Slow {
		return errors.Errorf("strategy %s: macd fast >= slow", s.Name)
	}
	if len(s.EMAs) < 2 {
		return errors.Errorf("strategy %s: need at least short and medium ema", s.Name)
	}
	if s.RSI.Oversold >= s.RSI.Overbought {
		return errors.Errorf("strategy %s: rsi oversold >= overbought", s.Name)
	}
	if s.MaxSpread < 0 {
		return errors.Errorf("strategy %s: negative max_spread", s.Name)
	}
	return nil
}
