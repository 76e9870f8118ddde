package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
)

type stubStore struct {
	bars   map[string][]models.PriceBar
	getErr error
}

func (s *stubStore) UpsertBar(context.Context, models.PriceBar) error { return nil }

func (s *stubStore) GetLatestBar(_ context.Context, symbol, timeframe string) (models.PriceBar, bool, error) {
	series := s.bars[symbol+"|"+timeframe]
	if len(series) == 0 {
		return models.PriceBar{}, false, nil
	}
	return series[len(series)-1], true, nil
}

func (s *stubStore) GetBars(_ context.Context, symbol, timeframe string, limit int) ([]models.PriceBar, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	series := s.bars[symbol+"|"+timeframe]
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}

// stubEvaluator всегда отдаёт заготовленный результат.
type stubEvaluator struct {
	name   string
	sig    *models.Signal
	err    error
	panics bool

	calls int
}

func (s *stubEvaluator) Name() string { return s.name }
func (s *stubEvaluator) Evaluate(context.Context, []models.PriceBar) (*models.Signal, error) {
	s.calls++
	if s.panics {
		panic("evaluator bug")
	}
	return s.sig, s.err
}
func (s *stubEvaluator) MinBars() int { return 1 }
func (s *stubEvaluator) State() State { return StateFlat }

func strategiesFor(symbols ...string) *config.StrategiesConfig {
	sc := scalpingConfig()
	sc.Instruments = symbols
	sc.Timeframes = []string{"M5"}
	return &config.StrategiesConfig{Strategies: []config.StrategyConfig{sc}}
}

func oneBarStore(symbol string) *stubStore {
	return &stubStore{bars: map[string][]models.PriceBar{
		symbol + "|M5": {{Symbol: symbol, Timeframe: "M5", Close: 1.1}},
	}}
}

func TestManagerBuildsEvaluatorMatrix(t *testing.T) {
	m, err := NewManager(strategiesFor("EURUSD", "GBPUSD"), &stubStore{})
	require.NoError(t, err)

	assert.Len(t, m.evaluators["EURUSD"]["scalp-test"], 1)
	assert.Len(t, m.evaluators["GBPUSD"]["scalp-test"], 1)
	// у каждой пары свой экземпляр со своим состоянием
	assert.NotSame(t,
		m.evaluators["EURUSD"]["scalp-test"]["M5"],
		m.evaluators["GBPUSD"]["scalp-test"]["M5"],
	)
}

func TestManagerSkipsDisabledStrategies(t *testing.T) {
	cfg := strategiesFor("EURUSD")
	cfg.Strategies[0].Enabled = false

	m, err := NewManager(cfg, &stubStore{})
	require.NoError(t, err)
	assert.Empty(t, m.evaluators)
}

func TestManagerRejectsUnknownType(t *testing.T) {
	cfg := strategiesFor("EURUSD")
	cfg.Strategies[0].Type = "martingale"

	_, err := NewManager(cfg, &stubStore{})
	require.Error(t, err)
}

func TestManagerDispatchesToAllHandlers(t *testing.T) {
	m, err := NewManager(strategiesFor("EURUSD"), oneBarStore("EURUSD"))
	require.NoError(t, err)
	buy := &models.Signal{Symbol: "EURUSD", Direction: models.DirectionBuy, Timeframe: "M5"}
	m.evaluators["EURUSD"]["scalp-test"]["M5"] = &stubEvaluator{name: "scalp-test", sig: buy}

	var first, second []models.Signal
	m.AddSignalHandler(func(_ context.Context, sig models.Signal) error {
		first = append(first, sig)
		return assert.AnError // ошибка обработчика не глушит соседей
	})
	m.AddSignalHandler(func(_ context.Context, sig models.Signal) error {
		second = append(second, sig)
		return nil
	})

	m.OnBar(context.Background(), "EURUSD", "M5", models.PriceBar{})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, models.DirectionBuy, second[0].Direction)
}

func TestManagerIsolatesEvaluatorFailure(t *testing.T) {
	cfg := strategiesFor("EURUSD")
	broken := cfg.Strategies[0]
	broken.Name = "broken"
	cfg.Strategies = append(cfg.Strategies, broken)

	m, err := NewManager(cfg, oneBarStore("EURUSD"))
	require.NoError(t, err)

	healthy := &stubEvaluator{name: "scalp-test"}
	m.evaluators["EURUSD"]["scalp-test"]["M5"] = healthy
	m.evaluators["EURUSD"]["broken"]["M5"] = &stubEvaluator{name: "broken", err: assert.AnError}

	m.OnBar(context.Background(), "EURUSD", "M5", models.PriceBar{})
	assert.Equal(t, 1, healthy.calls, "healthy evaluator must still run")
}

// Паника эвалюатора гасится внутри OnBar и не валит горутину
// синхронизатора; соседние эвалюаторы продолжают работать.
func TestManagerRecoversEvaluatorPanic(t *testing.T) {
	cfg := strategiesFor("EURUSD")
	broken := cfg.Strategies[0]
	broken.Name = "broken"
	cfg.Strategies = append(cfg.Strategies, broken)

	m, err := NewManager(cfg, oneBarStore("EURUSD"))
	require.NoError(t, err)

	healthy := &stubEvaluator{name: "scalp-test"}
	m.evaluators["EURUSD"]["scalp-test"]["M5"] = healthy
	m.evaluators["EURUSD"]["broken"]["M5"] = &stubEvaluator{name: "broken", panics: true}

	require.NotPanics(t, func() {
		m.OnBar(context.Background(), "EURUSD", "M5", models.PriceBar{})
	})
	assert.Equal(t, 1, healthy.calls, "healthy evaluator must still run")
}

func TestManagerEvaluateLatest(t *testing.T) {
	m, err := NewManager(strategiesFor("EURUSD"), oneBarStore("EURUSD"))
	require.NoError(t, err)

	ev := &stubEvaluator{name: "scalp-test"}
	m.evaluators["EURUSD"]["scalp-test"]["M5"] = ev

	m.EvaluateLatest(context.Background())
	assert.Equal(t, 1, ev.calls)

	// пары без сохранённых свечей пропускаются молча
	m2, err := NewManager(strategiesFor("GBPUSD"), &stubStore{})
	require.NoError(t, err)
	m2.EvaluateLatest(context.Background())
}

func TestManagerStoreErrorDoesNotPanic(t *testing.T) {
	store := &stubStore{getErr: assert.AnError}
	m, err := NewManager(strategiesFor("EURUSD"), store)
	require.NoError(t, err)

	// ошибка чтения окна логируется, паники и сигналов нет
	m.OnBar(context.Background(), "EURUSD", "M5", models.PriceBar{})
}
