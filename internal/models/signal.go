package models

import "time"

type Direction string

const (
	DirectionBuy   Direction = "BUY"
	DirectionSell  Direction = "SELL"
	DirectionClose Direction = "CLOSE"
)

// Signal — торговый сигнал стратегии. Живёт один проход пайплайна:
// создаётся эвалюатором, потребляется трейд-менеджером.
type Signal struct {
	Symbol     string
	Direction  Direction
	EntryPrice float64 // 0 для CLOSE
	StopLoss   float64
	TakeProfit float64
	Strategy   string
	Timeframe  string
	EmittedAt  time.Time
	Meta       map[string]float64
	Reason     string
}
