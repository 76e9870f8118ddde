package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	marketdata "trade_engine/internal/modules/marketdata/service"
	venue "trade_engine/internal/modules/venue/service"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

// Manager исполняет сигналы стратегий с учётом риска и владеет
// кэшем позиций. Кэш обновляется только целиком, снэпшотом
// с площадки: частичных состояний читатели не видят.
type Manager struct {
	cfg   *config.Config
	venue venue.Venue
	store marketdata.BarStore

	bmu  sync.RWMutex
	book []models.Position

	// сериализует операции со стопами по символу: трейлинг против
	// закрытия по сигналу. Открытие блокировки не требует — трейлинг
	// не видит тикет раньше, чем его вернула площадка.
	smu       sync.Mutex
	stopLocks map[string]*sync.Mutex
}

func NewManager(cfg *config.Config, v venue.Venue, store marketdata.BarStore) *Manager {
	return &Manager{
		cfg:       cfg,
		venue:     v,
		store:     store,
		stopLocks: make(map[string]*sync.Mutex),
	}
}

// ProcessSignal — единственная точка входа для сигналов.
// Ошибки исполнения не фатальны: сигнал сгорает, ретраев нет.
func (m *Manager) ProcessSignal(ctx context.Context, sig models.Signal) error {
	span, ctx := tracing.CreateChildSpan(ctx, "trade.ProcessSignal")
	defer span.Finish()

	switch sig.Direction {
	case models.DirectionBuy:
		return m.openPosition(ctx, sig, models.SideBuy)
	case models.DirectionSell:
		return m.openPosition(ctx, sig, models.SideSell)
	case models.DirectionClose:
		return m.closeAll(ctx, sig.Symbol)
	default:
		return errors.Errorf("unknown signal direction %q", sig.Direction)
	}
}

func (m *Manager) openPosition(ctx context.Context, sig models.Signal, side models.Side) error {
	if err := m.entryAllowed(sig.Symbol, side); err != nil {
		logger.Info("[TRADE] %s %s rejected: %v", side, sig.Symbol, err)
		return nil
	}

	volume, err := m.positionVolume(ctx, sig)
	if err != nil {
		return errors.Wrap(err, "position sizing")
	}

	res, err := m.venue.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Volume:     volume,
		Price:      sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Comment:    sig.Strategy,
	})
	if err != nil {
		// отказ ордера не фатален, позиции сверяем с площадкой
		logger.Error("[TRADE] place %s %s vol=%.2f: %v", side, sig.Symbol, volume, err)
		m.refreshBook(ctx)
		return nil
	}
	logger.Info("[TRADE] opened %s %s vol=%.2f ticket=%d sl=%.5f tp=%.5f",
		side, sig.Symbol, volume, res.Ticket, sig.StopLoss, sig.TakeProfit)

	m.refreshBook(ctx)
	return nil
}

// entryAllowed проверяет лимиты до похода на площадку.
func (m *Manager) entryAllowed(symbol string, side models.Side) error {
	m.bmu.RLock()
	defer m.bmu.RUnlock()

	if len(m.book) >= m.cfg.Risk.MaxTotalPositions {
		return errors.Errorf("position cap reached (%d)", m.cfg.Risk.MaxTotalPositions)
	}
	for _, p := range m.book {
		if p.Symbol == symbol && p.Side == side {
			return errors.Errorf("already %s on %s (ticket %d)", side, symbol, p.Ticket)
		}
	}
	return nil
}

func (m *Manager) closeAll(ctx context.Context, symbol string) error {
	m.bmu.RLock()
	var targets []models.Position
	for _, p := range m.book {
		if p.Symbol == symbol {
			targets = append(targets, p)
		}
	}
	m.bmu.RUnlock()

	// закрытие и трейлинг не должны дёргать стоп одного тикета вперемешку
	lock := m.stopLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	for _, p := range targets {
		if err := m.venue.ClosePosition(ctx, p.Ticket, p.Volume); err != nil {
			logger.Error("[TRADE] close ticket %d: %v", p.Ticket, err)
			continue
		}
		logger.Info("[TRADE] closed %s ticket=%d profit=%.2f", p.Symbol, p.Ticket, p.Profit)
	}
	m.refreshBook(ctx)
	return nil
}

// RefreshBook — принудительная сверка кэша с площадкой (старт, тесты).
func (m *Manager) RefreshBook(ctx context.Context) {
	m.refreshBook(ctx)
}

// refreshBook заменяет кэш позиций снэпшотом с площадки.
func (m *Manager) refreshBook(ctx context.Context) {
	positions, err := m.venue.ListOpenPositions(ctx)
	if err != nil {
		logger.Error("[TRADE] refresh positions: %v", err)
		return
	}
	m.bmu.Lock()
	m.book = positions
	m.bmu.Unlock()
}

// OpenPositions — копия текущего снэпшота.
func (m *Manager) OpenPositions() []models.Position {
	m.bmu.RLock()
	defer m.bmu.RUnlock()
	out := make([]models.Position, len(m.book))
	copy(out, m.book)
	return out
}

func (m *Manager) stopLock(symbol string) *sync.Mutex {
	m.smu.Lock()
	defer m.smu.Unlock()
	l, ok := m.stopLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.stopLocks[symbol] = l
	}
	return l
}
