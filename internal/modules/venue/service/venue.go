package service

import (
	"context"
	"errors"

	"trade_engine/internal/models"
)

// ErrUnavailable — транзиентная недоступность площадки (обрыв соединения,
// таймаут). Владеющий цикл ретраит после паузы, дальше ошибка не уходит.
var ErrUnavailable = errors.New("venue unavailable")

type OrderRequest struct {
	Symbol     string
	Side       models.Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// Venue — способность торговой площадки, как её видит движок.
// Все вызовы синхронные и могут завершиться ErrUnavailable.
type Venue interface {
	EnsureConnected(ctx context.Context) error
	FetchRecentBars(ctx context.Context, symbol, timeframe string, count, offset int) ([]models.PriceBar, error)
	GetTick(ctx context.Context, symbol string) (models.Tick, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderResult, error)
	ModifyStop(ctx context.Context, ticket int64, newStop float64, keepTakeProfit bool) error
	ClosePosition(ctx context.Context, ticket int64, volume float64) error
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	AccountEquity(ctx context.Context) (float64, error)
	TradingRules(ctx context.Context, symbol string) (models.TradingRules, error)
}
