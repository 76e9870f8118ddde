package helper

import (
	"math"
	"strings"
	"time"
)

// PairKey — ключ (инструмент, таймфрейм) для курсоров и подписок.
func PairKey(symbol, timeframe string) string { return symbol + ":" + timeframe }

// NormTF приводит обозначение таймфрейма к каноническому виду (M1, H4...).
func NormTF(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// TFDuration — длительность одной свечи таймфрейма, 0 если неизвестен.
func TFDuration(tf string) time.Duration {
	switch NormTF(tf) {
	case "M1":
		return time.Minute
	case "M5":
		return 5 * time.Minute
	case "M15":
		return 15 * time.Minute
	case "M30":
		return 30 * time.Minute
	case "H1":
		return time.Hour
	case "H4":
		return 4 * time.Hour
	case "D1":
		return 24 * time.Hour
	default:
		return 0
	}
}

// RoundToStep округляет объём к ближайшему шагу лота.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	steps := math.Round(v/step + 1e-12)
	return steps * step
}

// RoundDownToTick выравнивает цену по сетке тиков вниз. Допуск
// относительный: px/tick бывает порядка десятков тысяч, и абсолютный
// эпсилон там уже меньше шага представления float64.
func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick*(1+1e-9) + 1e-9)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick*(1-1e-9) - 1e-9)
	return steps * tick
}

// Clamp зажимает v в [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
