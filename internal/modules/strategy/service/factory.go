package service

import (
	"github.com/pkg/errors"

	"trade_engine/internal/modules/config"
)

// Constructor строит эвалюатор из конфигурации.
type Constructor func(cfg config.StrategyConfig) Evaluator

// constructors — реестр типов стратегий по теговому имени из конфига.
var constructors = map[string]Constructor{
	"scalping": func(cfg config.StrategyConfig) Evaluator {
		return NewScalpingEvaluator(cfg)
	},
}

// NewEvaluator — фабрика по теговому типу. Неизвестный тип —
// ошибка конфигурации, ловится на старте.
func NewEvaluator(cfg config.StrategyConfig) (Evaluator, error) {
	ctor, ok := constructors[cfg.Type]
	if !ok {
		return nil, errors.Errorf("unknown strategy type %q for %s", cfg.Type, cfg.Name)
	}
	return ctor(cfg), nil
}
