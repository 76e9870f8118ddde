package models

import "time"

// PriceBar — одна OHLCV-свеча инструмента на таймфрейме.
// Ключ уникальности: (Symbol, Timeframe, OpenTime).
type PriceBar struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Spread    float64
}

// Tick — последняя котировка bid/ask.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	At     time.Time
}
