package models

// TradingRules — лимиты и шаги символа с площадки.
type TradingRules struct {
	Symbol       string
	PointSize    float64 // минимальный шаг цены
	VolumeStep   float64
	VolumeMin    float64
	VolumeMax    float64
	ValuePerStep float64 // стоимость одного пункта на один лот
}

type OrderResult struct {
	Ticket int64
	Status string // "FILLED"/"REJECTED"
}
