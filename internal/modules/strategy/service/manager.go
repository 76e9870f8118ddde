package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	marketdata "trade_engine/internal/modules/marketdata/service"
	"trade_engine/pkg/logger"
)

// SignalHandler получает сигнал стратегии. Ошибка логируется,
// соседние обработчики не затрагивает.
type SignalHandler func(ctx context.Context, sig models.Signal) error

// Manager владеет матрицей instrument → strategy → timeframe → Evaluator
// и раздаёт сигналы обработчикам. Каждый эвалюатор — отдельный
// экземпляр со своим состоянием.
type Manager struct {
	store      marketdata.BarStore
	evaluators map[string]map[string]map[string]Evaluator

	hmu      sync.RWMutex
	handlers []SignalHandler
}

func NewManager(strategies *config.StrategiesConfig, store marketdata.BarStore) (*Manager, error) {
	m := &Manager{
		store:      store,
		evaluators: make(map[string]map[string]map[string]Evaluator),
	}

	for _, sc := range strategies.Strategies {
		if !sc.Enabled {
			logger.Info("[STRATEGY] %s disabled, skipping", sc.Name)
			continue
		}
		for _, symbol := range sc.Instruments {
			for _, tf := range sc.Timeframes {
				ev, err := NewEvaluator(sc)
				if err != nil {
					return nil, err
				}
				if m.evaluators[symbol] == nil {
					m.evaluators[symbol] = make(map[string]map[string]Evaluator)
				}
				if m.evaluators[symbol][sc.Name] == nil {
					m.evaluators[symbol][sc.Name] = make(map[string]Evaluator)
				}
				m.evaluators[symbol][sc.Name][tf] = ev
			}
		}
	}
	return m, nil
}

// AddSignalHandler — регистрация только аддитивная.
func (m *Manager) AddSignalHandler(h SignalHandler) {
	m.hmu.Lock()
	m.handlers = append(m.handlers, h)
	m.hmu.Unlock()
}

// OnBar — точка входа из синхронизатора: новая закрытая свеча.
// Ошибка одного эвалюатора не прерывает остальные.
func (m *Manager) OnBar(ctx context.Context, symbol, timeframe string, _ models.PriceBar) {
	for name, byTF := range m.evaluators[symbol] {
		ev, ok := byTF[timeframe]
		if !ok {
			continue
		}
		if err := m.evaluate(ctx, ev, symbol, timeframe); err != nil {
			logger.Error("[STRATEGY] %s %s %s: %v", name, symbol, timeframe, err)
		}
	}
}

func (m *Manager) evaluate(ctx context.Context, ev Evaluator, symbol, timeframe string) (err error) {
	// паника эвалюатора не должна валить цикл синхронизатора
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("evaluator %s panicked: %v", ev.Name(), r)
		}
	}()

	window, err := m.store.GetBars(ctx, symbol, timeframe, ev.MinBars())
	if err != nil {
		return err
	}
	sig, err := ev.Evaluate(ctx, window)
	if err != nil {
		return err
	}
	if sig == nil {
		return nil
	}
	logger.Info("[STRATEGY] %s emitted %s for %s %s", ev.Name(), sig.Direction, symbol, timeframe)
	m.dispatch(ctx, *sig)
	return nil
}

func (m *Manager) dispatch(ctx context.Context, sig models.Signal) {
	m.hmu.RLock()
	handlers := m.handlers
	m.hmu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, sig); err != nil {
			logger.Error("[STRATEGY] signal handler for %s %s: %v", sig.Symbol, sig.Direction, err)
		}
	}
}

// EvaluateLatest прогоняет все эвалюаторы по последней сохранённой
// свече. Для прогрева на старте и для работы без push-уведомлений.
func (m *Manager) EvaluateLatest(ctx context.Context) {
	for symbol, byName := range m.evaluators {
		seen := make(map[string]bool)
		for _, byTF := range byName {
			for tf := range byTF {
				seen[tf] = true
			}
		}
		for tf := range seen {
			bar, found, err := m.store.GetLatestBar(ctx, symbol, tf)
			if err != nil {
				logger.Error("[STRATEGY] latest bar %s %s: %v", symbol, tf, err)
				continue
			}
			if !found {
				continue
			}
			m.OnBar(ctx, symbol, tf, bar)
		}
	}
}
