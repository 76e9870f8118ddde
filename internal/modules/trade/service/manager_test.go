package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	venue "trade_engine/internal/modules/venue/service"
)

type fakeVenue struct {
	mu        sync.Mutex
	positions []models.Position
	equity    float64
	rules     models.TradingRules
	tick      models.Tick

	placed       []venue.OrderRequest
	closed       []int64
	placeErr     error
	nextTicket   int64
	modifyErr    error
	stops        map[int64]float64
	modifyCalls  int
	inFlight     int32
	raceDetected int32
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		equity: 10000,
		rules: models.TradingRules{
			Symbol:       "EURUSD",
			PointSize:    0.0001,
			VolumeStep:   0.01,
			VolumeMin:    0.01,
			VolumeMax:    100,
			ValuePerStep: 1,
		},
		nextTicket: 100,
		stops:      make(map[int64]float64),
	}
}

func (f *fakeVenue) EnsureConnected(context.Context) error { return nil }

func (f *fakeVenue) FetchRecentBars(context.Context, string, string, int, int) ([]models.PriceBar, error) {
	return nil, nil
}

func (f *fakeVenue) GetTick(context.Context, string) (models.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tick, nil
}

func (f *fakeVenue) PlaceOrder(_ context.Context, req venue.OrderRequest) (models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return models.OrderResult{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextTicket++
	f.positions = append(f.positions, models.Position{
		Ticket:     f.nextTicket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		OpenPrice:  req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	return models.OrderResult{Ticket: f.nextTicket, Status: "FILLED"}, nil
}

func (f *fakeVenue) ModifyStop(_ context.Context, ticket int64, newStop float64, _ bool) error {
	// детектор параллельных правок стопа
	if !atomic.CompareAndSwapInt32(&f.inFlight, 0, 1) {
		atomic.StoreInt32(&f.raceDetected, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.StoreInt32(&f.inFlight, 0)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modifyCalls++
	f.stops[ticket] = newStop
	for i := range f.positions {
		if f.positions[i].Ticket == ticket {
			f.positions[i].StopLoss = newStop
		}
	}
	return nil
}

func (f *fakeVenue) ClosePosition(_ context.Context, ticket int64, _ float64) error {
	// закрытие тоже трогает стоп-состояние тикета — детектор общий
	if !atomic.CompareAndSwapInt32(&f.inFlight, 0, 1) {
		atomic.StoreInt32(&f.raceDetected, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.StoreInt32(&f.inFlight, 0)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, ticket)
	kept := f.positions[:0]
	for _, p := range f.positions {
		if p.Ticket != ticket {
			kept = append(kept, p)
		}
	}
	f.positions = kept
	return nil
}

func (f *fakeVenue) ListOpenPositions(context.Context) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeVenue) AccountEquity(context.Context) (float64, error) {
	return f.equity, nil
}

func (f *fakeVenue) TradingRules(context.Context, string) (models.TradingRules, error) {
	return f.rules, nil
}

type noopStore struct {
	bars []models.PriceBar
}

func (s *noopStore) UpsertBar(context.Context, models.PriceBar) error { return nil }
func (s *noopStore) GetLatestBar(context.Context, string, string) (models.PriceBar, bool, error) {
	return models.PriceBar{}, false, nil
}
func (s *noopStore) GetBars(context.Context, string, string, int) ([]models.PriceBar, error) {
	return s.bars, nil
}

func riskConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{
			RiskPct:             1,
			MaxTotalPositions:   5,
			TrailingStopEnabled: true,
			TrailingATRMult:     0,
			TrailingFixedPoints: 200,
			TrailingInterval:    time.Second,
			TrailingTimeframe:   "M5",
		},
	}
}

func buySignal() models.Signal {
	return models.Signal{
		Symbol:     "EURUSD",
		Direction:  models.DirectionBuy,
		EntryPrice: 1.1000,
		StopLoss:   1.0950,
		TakeProfit: 1.1100,
		Strategy:   "scalp",
	}
}

func TestProcessSignalOpensPosition(t *testing.T) {
	fv := newFakeVenue()
	m := NewManager(riskConfig(), fv, &noopStore{})

	require.NoError(t, m.ProcessSignal(context.Background(), buySignal()))

	require.Len(t, fv.placed, 1)
	req := fv.placed[0]
	assert.Equal(t, models.SideBuy, req.Side)
	// equity=10000, риск 1% = 100; стоп 50 пунктов, пункт за шаг = 1 -> 2 лота
	assert.InDelta(t, 2.0, req.Volume, 1e-9)

	// кэш позиций обновлён после ордера
	require.Len(t, m.OpenPositions(), 1)
}

func TestProcessSignalRefusesDuplicateDirection(t *testing.T) {
	fv := newFakeVenue()
	m := NewManager(riskConfig(), fv, &noopStore{})

	require.NoError(t, m.ProcessSignal(context.Background(), buySignal()))
	require.NoError(t, m.ProcessSignal(context.Background(), buySignal()))

	assert.Len(t, fv.placed, 1, "second BUY in same direction must be refused")

	// противоположное направление лимитом не блокируется
	sell := buySignal()
	sell.Direction = models.DirectionSell
	sell.StopLoss = 1.1050
	sell.TakeProfit = 1.0900
	require.NoError(t, m.ProcessSignal(context.Background(), sell))
	assert.Len(t, fv.placed, 2)
}

func TestProcessSignalHonorsPositionCap(t *testing.T) {
	fv := newFakeVenue()
	cfg := riskConfig()
	cfg.Risk.MaxTotalPositions = 1
	m := NewManager(cfg, fv, &noopStore{})

	require.NoError(t, m.ProcessSignal(context.Background(), buySignal()))

	other := buySignal()
	other.Symbol = "GBPUSD"
	require.NoError(t, m.ProcessSignal(context.Background(), other))

	assert.Len(t, fv.placed, 1, "cap must reject entry for another instrument too")
}

func TestProcessSignalCloseAll(t *testing.T) {
	fv := newFakeVenue()
	m := NewManager(riskConfig(), fv, &noopStore{})

	require.NoError(t, m.ProcessSignal(context.Background(), buySignal()))
	require.Len(t, m.OpenPositions(), 1)

	require.NoError(t, m.ProcessSignal(context.Background(), models.Signal{
		Symbol:    "EURUSD",
		Direction: models.DirectionClose,
	}))

	assert.Len(t, fv.closed, 1)
	assert.Empty(t, m.OpenPositions())
}

func TestOrderRejectionIsNonFatal(t *testing.T) {
	fv := newFakeVenue()
	fv.placeErr = assert.AnError
	m := NewManager(riskConfig(), fv, &noopStore{})

	require.NoError(t, m.ProcessSignal(context.Background(), buySignal()))
	assert.Empty(t, m.OpenPositions())
}

func TestBookReplacedWholesale(t *testing.T) {
	fv := newFakeVenue()
	m := NewManager(riskConfig(), fv, &noopStore{})

	fv.positions = []models.Position{{Ticket: 1, Symbol: "EURUSD", Side: models.SideBuy}}
	m.RefreshBook(context.Background())
	require.Len(t, m.OpenPositions(), 1)

	// площадка говорит, что позиций нет — кэш заменяется целиком
	fv.mu.Lock()
	fv.positions = nil
	fv.mu.Unlock()
	m.RefreshBook(context.Background())
	assert.Empty(t, m.OpenPositions())
}
