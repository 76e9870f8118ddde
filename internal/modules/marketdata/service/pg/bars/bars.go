package bars

import (
	"context"
	"errors"
	"fmt"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"

	"github.com/jackc/pgx/v5"
)

// Store implement BarStore over postgres.
type Store struct {
	tx db.TxManager
}

func New(tx db.TxManager) *Store {
	return &Store{tx: tx}
}

const upsertSQL = `
INSERT INTO price_bars (symbol, timeframe, open_time, open, high, low, close, volume, spread)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (symbol, timeframe, open_time)
DO UPDATE SET open = EXCLUDED.open,
              high = EXCLUDED.high,
              low = EXCLUDED.low,
              close = EXCLUDED.close,
              volume = EXCLUDED.volume,
              spread = EXCLUDED.spread`

func (s *Store) UpsertBar(ctx context.Context, bar models.PriceBar) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("bars.UpsertBar: %w", err)
		}
	}()

	_, err = s.tx.Conn().Exec(ctx, upsertSQL,
		bar.Symbol, bar.Timeframe, bar.OpenTime,
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Spread,
	)
	return
}

const latestSQL = `
SELECT symbol, timeframe, open_time, open, high, low, close, volume, spread
FROM price_bars
WHERE symbol = $1 AND timeframe = $2
ORDER BY open_time DESC
LIMIT 1`

func (s *Store) GetLatestBar(ctx context.Context, symbol, timeframe string) (models.PriceBar, bool, error) {
	var bar models.PriceBar
	row := s.tx.Conn().QueryRow(ctx, latestSQL, symbol, timeframe)
	err := row.Scan(&bar.Symbol, &bar.Timeframe, &bar.OpenTime,
		&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.Spread)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PriceBar{}, false, nil
	}
	if err != nil {
		return models.PriceBar{}, false, fmt.Errorf("bars.GetLatestBar: %w", err)
	}
	return bar, true, nil
}

const windowSQL = `
SELECT symbol, timeframe, open_time, open, high, low, close, volume, spread
FROM price_bars
WHERE symbol = $1 AND timeframe = $2
ORDER BY open_time DESC
LIMIT $3`

func (s *Store) GetBars(ctx context.Context, symbol, timeframe string, count int) ([]models.PriceBar, error) {
	rows, err := s.tx.Conn().Query(ctx, windowSQL, symbol, timeframe, count)
	if err != nil {
		return nil, fmt.Errorf("bars.GetBars: %w", err)
	}
	defer rows.Close()

	var out []models.PriceBar
	for rows.Next() {
		var bar models.PriceBar
		if err := rows.Scan(&bar.Symbol, &bar.Timeframe, &bar.OpenTime,
			&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.Spread); err != nil {
			return nil, fmt.Errorf("bars.GetBars scan: %w", err)
		}
		out = append(out, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bars.GetBars rows: %w", err)
	}

	// запрос идёт от свежих к старым — разворачиваем в хронологию
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
