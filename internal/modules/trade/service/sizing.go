package service

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

// positionVolume считает объём от риска на сделку: сколько лотов
// можно взять, чтобы при срабатывании стопа потерять не больше
// risk_pct эквити.
func (m *Manager) positionVolume(ctx context.Context, sig models.Signal) (float64, error) {
	equity, err := m.venue.AccountEquity(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "account equity")
	}
	rules, err := m.venue.TradingRules(ctx, sig.Symbol)
	if err != nil {
		return 0, errors.Wrap(err, "trading rules")
	}
	return computeVolume(equity, m.cfg.Risk.RiskPct, sig.EntryPrice, sig.StopLoss, rules)
}

func computeVolume(equity, riskPct, entry, stop float64, rules models.TradingRules) (float64, error) {
	stopDistance := math.Abs(entry - stop)
	if stopDistance <= 0 {
		return 0, errors.New("zero stop distance")
	}
	if rules.PointSize <= 0 || rules.ValuePerStep <= 0 {
		return 0, errors.Errorf("bad trading rules for %s", rules.Symbol)
	}

	riskAmount := equity * riskPct / 100
	stopPoints := stopDistance / rules.PointSize
	volume := riskAmount / stopPoints / rules.ValuePerStep

	volume = helper.RoundToStep(volume, rules.VolumeStep)
	volume = helper.Clamp(volume, rules.VolumeMin, rules.VolumeMax)
	if volume <= 0 {
		return 0, errors.New("computed volume is not positive")
	}
	return volume, nil
}
