package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position — кэш позиции с площадки. Владелец — trade.Manager,
// при каждом refresh заменяется целиком, не мёржится.
type Position struct {
	Ticket       int64
	Symbol       string
	Side         Side
	Volume       float64
	OpenPrice    float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	Profit       float64
	OpenTime     time.Time
}
