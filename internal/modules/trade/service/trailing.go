package service

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/indicator"
	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// RunTrailing — отдельный цикл подтяжки стопов, живёт на своей
// частоте независимо от сигналов.
func (m *Manager) RunTrailing(ctx context.Context) {
	if !m.cfg.Risk.TrailingStopEnabled {
		logger.Info("[TRAIL] trailing stop disabled")
		return
	}
	logger.Info("[TRAIL] loop started, interval=%s", m.cfg.Risk.TrailingInterval)

	ticker := time.NewTicker(m.cfg.Risk.TrailingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("[TRAIL] loop stopped")
			return
		case <-ticker.C:
			m.TrailingPass(ctx)
		}
	}
}

// TrailingPass подтягивает стопы всех открытых позиций. Ошибка по
// одной позиции не мешает остальным; после прохода кэш сверяется
// с площадкой.
func (m *Manager) TrailingPass(ctx context.Context) {
	for _, p := range m.OpenPositions() {
		if p.StopLoss == 0 {
			continue
		}
		if err := m.trailPosition(ctx, p); err != nil {
			logger.Error("[TRAIL] ticket %d %s: %v", p.Ticket, p.Symbol, err)
		}
	}
	m.refreshBook(ctx)
}

func (m *Manager) trailPosition(ctx context.Context, p models.Position) error {
	rules, err := m.venue.TradingRules(ctx, p.Symbol)
	if err != nil {
		return errors.Wrap(err, "trading rules")
	}
	distance, err := m.trailingDistance(ctx, p.Symbol, rules)
	if err != nil {
		return err
	}
	tick, err := m.venue.GetTick(ctx, p.Symbol)
	if err != nil {
		return errors.Wrap(err, "get tick")
	}

	lock := m.stopLock(p.Symbol)
	lock.Lock()
	defer lock.Unlock()

	newStop, move := nextStop(p, tick, distance, rules.PointSize)
	if !move {
		return nil
	}
	if err := m.venue.ModifyStop(ctx, p.Ticket, newStop, true); err != nil {
		return errors.Wrap(err, "modify stop")
	}
	logger.Info("[TRAIL] ticket %d %s stop %.5f -> %.5f", p.Ticket, p.Symbol, p.StopLoss, newStop)
	return nil
}

// nextStop решает, куда двигать стоп. Только в сторону прибыли:
// лонгу вверх, шорту вниз, ослаблять нельзя. Кандидат выравнивается
// по сетке пунктов от цены, чтобы площадка не отвергла уровень.
func nextStop(p models.Position, tick models.Tick, distance, pointSize float64) (float64, bool) {
	switch p.Side {
	case models.SideBuy:
		candidate := helper.RoundDownToTick(tick.Bid-distance, pointSize)
		if candidate > p.StopLoss {
			return candidate, true
		}
	case models.SideSell:
		candidate := helper.RoundUpToTick(tick.Ask+distance, pointSize)
		if candidate < p.StopLoss {
			return candidate, true
		}
	}
	return p.StopLoss, false
}

// trailingDistance — дистанция от ATR, либо фиксированные пункты,
// если баров для ATR не хватает.
func (m *Manager) trailingDistance(ctx context.Context, symbol string, rules models.TradingRules) (float64, error) {
	fixed := m.cfg.Risk.TrailingFixedPoints * rules.PointSize

	if m.cfg.Risk.TrailingATRMult <= 0 {
		return fixed, nil
	}
	period := m.cfg.Risk.TrailingATRPeriod
	bars, err := m.store.GetBars(ctx, symbol, m.cfg.Risk.TrailingTimeframe, period*3)
	if err != nil {
		return 0, errors.Wrap(err, "load bars for atr")
	}
	if len(bars) < period+1 {
		if fixed > 0 {
			return fixed, nil
		}
		return 0, errors.Errorf("not enough bars for atr(%d): %d", period, len(bars))
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	atr := indicator.ATR(highs, lows, closes, period)
	last := atr[len(atr)-1]
	if math.IsNaN(last) || last <= 0 {
		if fixed > 0 {
			return fixed, nil
		}
		return 0, errors.New("atr undefined")
	}
	return last * m.cfg.Risk.TrailingATRMult, nil
}
