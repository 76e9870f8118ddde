package service

import (
	"context"

	"trade_engine/internal/models"
)

// State эвалюатора: отражает последнее выданное направление,
// чтобы не дублировать сигналы в одну сторону.
type State string

const (
	StateFlat  State = "FLAT"
	StateLong  State = "LONG"
	StateShort State = "SHORT"
)

// Evaluator принимает закрытую свечу и решает, есть ли сигнал.
// Возвращает nil, когда сигнала нет. Реализации stateful и
// не потокобезопасны: менеджер вызывает каждый экземпляр
// последовательно в рамках одной пары (symbol, timeframe).
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, bars []models.PriceBar) (*models.Signal, error)
	// MinBars — минимальная глубина истории для осмысленной оценки.
	MinBars() int
	State() State
}
