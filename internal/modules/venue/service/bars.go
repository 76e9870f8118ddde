package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"trade_engine/internal/models"
)

type barPayload struct {
	OpenTime int64   `json:"t"` // unix seconds
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
	Spread   float64 `json:"s"`
}

// FetchRecentBars отдаёт count последних свечей начиная с offset от текущей
// (offset=0 — формирующаяся свеча), в хронологическом порядке.
func (c *Client) FetchRecentBars(ctx context.Context, symbol, timeframe string, count, offset int) ([]models.PriceBar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("tf", timeframe)
	q.Set("count", strconv.Itoa(count))
	q.Set("offset", strconv.Itoa(offset))

	var payload []barPayload
	if err := c.get(ctx, "/api/v1/bars", q, &payload); err != nil {
		return nil, fmt.Errorf("fetch bars %s %s: %w", symbol, timeframe, err)
	}

	bars := make([]models.PriceBar, 0, len(payload))
	for _, p := range payload {
		bars = append(bars, models.PriceBar{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  time.Unix(p.OpenTime, 0).UTC(),
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
			Spread:    p.Spread,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	return bars, nil
}

// GetTick берёт котировку из websocket-кэша, при его отсутствии — по REST.
func (c *Client) GetTick(ctx context.Context, symbol string) (models.Tick, error) {
	c.mu.RLock()
	tick, ok := c.ticks[symbol]
	c.mu.RUnlock()
	if ok && time.Since(tick.At) < tickStaleAfter {
		return tick, nil
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	var payload struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	}
	if err := c.get(ctx, "/api/v1/tick", q, &payload); err != nil {
		return models.Tick{}, fmt.Errorf("get tick %s: %w", symbol, err)
	}
	return models.Tick{Symbol: symbol, Bid: payload.Bid, Ask: payload.Ask, At: time.Now()}, nil
}
