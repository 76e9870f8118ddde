package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"trade_engine/internal/models"
)

func (c *Client) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	var payload []struct {
		Ticket     int64   `json:"ticket"`
		Symbol     string  `json:"symbol"`
		Side       string  `json:"side"`
		Volume     float64 `json:"volume"`
		OpenPrice  float64 `json:"open_price"`
		Price      float64 `json:"price"`
		StopLoss   float64 `json:"sl"`
		TakeProfit float64 `json:"tp"`
		Profit     float64 `json:"profit"`
		OpenTime   int64   `json:"open_time"`
	}
	if err := c.get(ctx, "/api/v1/positions", nil, &payload); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	out := make([]models.Position, 0, len(payload))
	for _, p := range payload {
		out = append(out, models.Position{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Side:         models.Side(p.Side),
			Volume:       p.Volume,
			OpenPrice:    p.OpenPrice,
			CurrentPrice: p.Price,
			StopLoss:     p.StopLoss,
			TakeProfit:   p.TakeProfit,
			Profit:       p.Profit,
			OpenTime:     time.Unix(p.OpenTime, 0).UTC(),
		})
	}
	return out, nil
}

func (c *Client) AccountEquity(ctx context.Context) (float64, error) {
	var payload struct {
		Equity float64 `json:"equity"`
	}
	if err := c.get(ctx, "/api/v1/account", nil, &payload); err != nil {
		return 0, fmt.Errorf("account equity: %w", err)
	}
	if payload.Equity <= 0 {
		return 0, fmt.Errorf("bridge returned non-positive equity: %.2f", payload.Equity)
	}
	return payload.Equity, nil
}

func (c *Client) TradingRules(ctx context.Context, symbol string) (models.TradingRules, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var payload struct {
		Point        float64 `json:"point"`
		VolumeStep   float64 `json:"volume_step"`
		VolumeMin    float64 `json:"volume_min"`
		VolumeMax    float64 `json:"volume_max"`
		ValuePerStep float64 `json:"value_per_step"`
	}
	if err := c.get(ctx, "/api/v1/rules", q, &payload); err != nil {
		return models.TradingRules{}, fmt.Errorf("trading rules %s: %w", symbol, err)
	}
	if payload.Point <= 0 || payload.VolumeStep <= 0 {
		return models.TradingRules{}, fmt.Errorf("trading rules %s: bad payload (point=%v step=%v)", symbol, payload.Point, payload.VolumeStep)
	}
	return models.TradingRules{
		Symbol:       symbol,
		PointSize:    payload.Point,
		VolumeStep:   payload.VolumeStep,
		VolumeMin:    payload.VolumeMin,
		VolumeMax:    payload.VolumeMax,
		ValuePerStep: payload.ValuePerStep,
	}, nil
}
