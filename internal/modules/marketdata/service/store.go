package service

import (
	"context"

	"trade_engine/internal/models"
)

// BarStore — контракт персистентности свечей: append-or-update по ключу
// (symbol, timeframe, open_time), чтение последней и чтение окна.
type BarStore interface {
	UpsertBar(ctx context.Context, bar models.PriceBar) error
	// GetLatestBar возвращает found=false, если серии ещё нет — без ошибки.
	GetLatestBar(ctx context.Context, symbol, timeframe string) (models.PriceBar, bool, error)
	// GetBars возвращает не более count последних свечей в хронологическом порядке.
	GetBars(ctx context.Context, symbol, timeframe string, count int) ([]models.PriceBar, error)
}
