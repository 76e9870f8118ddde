package service

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/indicator"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
)

const historyBuffer = 10

// ScalpingEvaluator — скальпинг на пересечении MACD с фильтрами RSI,
// тренда по EMA и опциональным подтверждением объёмом. Все ворота
// входа обязаны сработать одновременно, частичных совпадений нет.
type ScalpingEvaluator struct {
	cfg   config.StrategyConfig
	state State
}

func NewScalpingEvaluator(cfg config.StrategyConfig) *ScalpingEvaluator {
	return &ScalpingEvaluator{cfg: cfg, state: StateFlat}
}

func (e *ScalpingEvaluator) Name() string { return e.cfg.Name }

func (e *ScalpingEvaluator) State() State { return e.state }

func (e *ScalpingEvaluator) MinBars() int {
	longest := e.cfg.MACD.Slow + e.cfg.MACD.Signal
	if p := e.cfg.RSI.Period + 1; p > longest {
		longest = p
	}
	if p := e.cfg.ATR.Period + 1; p > longest {
		longest = p
	}
	for _, p := range e.cfg.EMAs {
		if p > longest {
			longest = p
		}
	}
	if e.cfg.VolumeConfirmation.Enabled {
		if p := e.cfg.VolumeConfirmation.Lookback + 2; p > longest {
			longest = p
		}
	}
	return longest + historyBuffer
}

// Evaluate смотрит на окно свечей, последняя — только что открывшаяся
// (ещё формируется). За один вызов максимум один сигнал; выход
// проверяется только если не сработал вход.
func (e *ScalpingEvaluator) Evaluate(_ context.Context, bars []models.PriceBar) (*models.Signal, error) {
	n := len(bars)
	if n < e.MinBars() {
		return nil, nil
	}

	last := bars[n-1]
	if e.cfg.MaxSpread > 0 && last.Spread > e.cfg.MaxSpread {
		return nil, nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	line, signalLine, hist := indicator.MACD(closes, e.cfg.MACD.Fast, e.cfg.MACD.Slow, e.cfg.MACD.Signal)
	rsi := indicator.RSI(closes, e.cfg.RSI.Period)
	atr := indicator.ATR(highs, lows, closes, e.cfg.ATR.Period)
	shortEMA := indicator.EMA(closes, e.cfg.EMAs[0])
	mediumEMA := indicator.EMA(closes, e.cfg.EMAs[1])
	var longEMA []float64
	if len(e.cfg.EMAs) > 2 {
		longEMA = indicator.EMA(closes, e.cfg.EMAs[2])
	}

	for _, v := range []float64{line[n-1], line[n-2], signalLine[n-1], signalLine[n-2], hist[n-1], rsi[n-1], atr[n-1], shortEMA[n-1], mediumEMA[n-1]} {
		if math.IsNaN(v) {
			return nil, errors.Errorf("%s: indicator window too short for %d bars", e.cfg.Name, n)
		}
	}

	// пересечение строго по двум последним точкам, равенство не считается
	crossUp := line[n-2] < signalLine[n-2] && line[n-1] > signalLine[n-1]
	crossDown := line[n-2] > signalLine[n-2] && line[n-1] < signalLine[n-1]

	if sig := e.tryEnter(bars, crossUp, crossDown, line[n-1], signalLine[n-1], hist[n-1], rsi[n-1], atr[n-1], shortEMA[n-1], mediumEMA[n-1], longEMA); sig != nil {
		return sig, nil
	}
	return e.tryExit(last, crossUp, crossDown, shortEMA[n-1], mediumEMA[n-1]), nil
}

func (e *ScalpingEvaluator) tryEnter(bars []models.PriceBar, crossUp, crossDown bool, line, signalLine, hist, rsi, atr, shortEMA, mediumEMA float64, longEMA []float64) *models.Signal {
	n := len(bars)
	price := bars[n-1].Close

	longOK := crossUp &&
		line > signalLine &&
		hist > 0 &&
		rsi < e.cfg.RSI.Overbought &&
		shortEMA > mediumEMA &&
		price > shortEMA

	shortOK := crossDown &&
		line < signalLine &&
		hist < 0 &&
		rsi > e.cfg.RSI.Oversold &&
		shortEMA < mediumEMA &&
		price < shortEMA

	if e.cfg.RequireAboveLongEMA && longEMA != nil && !math.IsNaN(longEMA[n-1]) {
		longOK = longOK && price > longEMA[n-1]
		shortOK = shortOK && price < longEMA[n-1]
	}

	if e.cfg.VolumeConfirmation.Enabled && !e.volumeConfirmed(bars) {
		return nil
	}

	switch {
	case longOK && e.state != StateLong:
		e.state = StateLong
		return e.entrySignal(bars[n-1], models.DirectionBuy, price-atr*e.cfg.StopLossATRMult, price+atr*e.cfg.TakeProfitATRMult, atr, rsi)
	case shortOK && e.state != StateShort:
		e.state = StateShort
		return e.entrySignal(bars[n-1], models.DirectionSell, price+atr*e.cfg.StopLossATRMult, price-atr*e.cfg.TakeProfitATRMult, atr, rsi)
	}
	return nil
}

// volumeConfirmed сравнивает объём последней закрытой свечи (предпоследней
// в окне, последняя ещё формируется) со средним по lookback закрытых.
func (e *ScalpingEvaluator) volumeConfirmed(bars []models.PriceBar) bool {
	n := len(bars)
	lookback := e.cfg.VolumeConfirmation.Lookback
	if n < lookback+2 {
		return false
	}
	var sum float64
	for _, b := range bars[n-1-lookback : n-1] {
		sum += b.Volume
	}
	avg := sum / float64(lookback)
	if avg <= 0 {
		return false
	}
	return bars[n-2].Volume > avg*e.cfg.VolumeConfirmation.Threshold
}

func (e *ScalpingEvaluator) tryExit(last models.PriceBar, crossUp, crossDown bool, shortEMA, mediumEMA float64) *models.Signal {
	var exit bool
	switch e.state {
	case StateLong:
		exit = crossDown || (e.cfg.RapidExit && shortEMA < mediumEMA)
	case StateShort:
		exit = crossUp || (e.cfg.RapidExit && shortEMA > mediumEMA)
	default:
		return nil
	}
	if !exit {
		return nil
	}
	e.state = StateFlat
	return &models.Signal{
		Symbol:    last.Symbol,
		Direction: models.DirectionClose,
		Strategy:  e.cfg.Name,
		Timeframe: last.Timeframe,
		EmittedAt: time.Now().UTC(),
		Reason:    "opposite crossover / trend flip",
	}
}

func (e *ScalpingEvaluator) entrySignal(last models.PriceBar, dir models.Direction, stop, take, atr, rsi float64) *models.Signal {
	return &models.Signal{
		Symbol:     last.Symbol,
		Direction:  dir,
		EntryPrice: last.Close,
		StopLoss:   stop,
		TakeProfit: take,
		Strategy:   e.cfg.Name,
		Timeframe:  last.Timeframe,
		EmittedAt:  time.Now().UTC(),
		Meta: map[string]float64{
			"atr": atr,
			"rsi": rsi,
		},
		Reason: "macd crossover with trend filters",
	}
}
