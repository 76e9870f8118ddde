package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	venue "trade_engine/internal/modules/venue/service"
)

type fakeVenue struct {
	venue.Venue

	connected bool
	// bars[symbol|TF] — хронологический ряд, offset 0 = последняя свеча
	bars     map[string][]models.PriceBar
	failFor  map[string]error
	fetches  int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		connected: true,
		bars:      make(map[string][]models.PriceBar),
		failFor:   make(map[string]error),
	}
}

func (f *fakeVenue) EnsureConnected(context.Context) error {
	if !f.connected {
		return venue.ErrUnavailable
	}
	return nil
}

func (f *fakeVenue) FetchRecentBars(_ context.Context, symbol, timeframe string, count, offset int) ([]models.PriceBar, error) {
	f.fetches++
	key := helper.PairKey(symbol, timeframe)
	if err := f.failFor[key]; err != nil {
		return nil, err
	}
	series := f.bars[key]
	n := len(series)
	end := n - offset
	if end <= 0 {
		return nil, nil
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	out := make([]models.PriceBar, end-start)
	copy(out, series[start:end])
	return out, nil
}

func (f *fakeVenue) push(symbol, timeframe string, bar models.PriceBar) {
	key := helper.PairKey(symbol, timeframe)
	f.bars[key] = append(f.bars[key], bar)
}

// rewriteLast подменяет текущую (формирующуюся) свечу новыми значениями.
func (f *fakeVenue) rewriteLast(symbol, timeframe string, bar models.PriceBar) {
	key := helper.PairKey(symbol, timeframe)
	series := f.bars[key]
	series[len(series)-1] = bar
}

type memStore struct {
	bars    map[string]map[int64]models.PriceBar
	upserts int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{bars: make(map[string]map[int64]models.PriceBar)}
}

func (m *memStore) UpsertBar(_ context.Context, bar models.PriceBar) error {
	if m.failing {
		return assert.AnError
	}
	m.upserts++
	key := helper.PairKey(bar.Symbol, bar.Timeframe)
	if m.bars[key] == nil {
		m.bars[key] = make(map[int64]models.PriceBar)
	}
	m.bars[key][bar.OpenTime.Unix()] = bar
	return nil
}

func (m *memStore) GetLatestBar(_ context.Context, symbol, timeframe string) (models.PriceBar, bool, error) {
	var latest models.PriceBar
	found := false
	for _, bar := range m.bars[helper.PairKey(symbol, timeframe)] {
		if !found || bar.OpenTime.After(latest.OpenTime) {
			latest = bar
			found = true
		}
	}
	return latest, found, nil
}

func (m *memStore) GetBars(_ context.Context, symbol, timeframe string, limit int) ([]models.PriceBar, error) {
	series := m.bars[helper.PairKey(symbol, timeframe)]
	out := make([]models.PriceBar, 0, len(series))
	for _, bar := range series {
		out = append(out, bar)
	}
	return out, nil
}

func (m *memStore) count(symbol, timeframe string) int {
	return len(m.bars[helper.PairKey(symbol, timeframe)])
}

func testConfig(pairs ...config.InstrumentConfig) *config.Config {
	return &config.Config{
		Instruments: pairs,
		Sync: config.SyncConfig{
			Interval:   time.Second,
			RetryDelay: time.Second,
		},
	}
}

func instrument(symbol string, timeframes ...config.TimeframeConfig) config.InstrumentConfig {
	return config.InstrumentConfig{Symbol: symbol, Timeframes: timeframes}
}

func tf(name string, history int) config.TimeframeConfig {
	return config.TimeframeConfig{Name: name, HistorySize: history}
}

func bar(symbol, timeframe string, openTime time.Time, close float64) models.PriceBar {
	return models.PriceBar{
		Symbol:    symbol,
		Timeframe: timeframe,
		OpenTime:  openTime,
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    100,
	}
}

func TestSyncTickDetectsNewBarOnce(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 10))), fv, st)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fv.push("EURUSD", "M5", bar("EURUSD", "M5", t0, 1.10))

	var notified []models.PriceBar
	s.AddBarListener(func(_ context.Context, _, _ string, b models.PriceBar) {
		notified = append(notified, b)
	})

	require.NoError(t, s.SyncTick(context.Background()))
	require.Len(t, notified, 1)
	assert.Equal(t, t0, notified[0].OpenTime)

	cursor, ok := s.Cursor("EURUSD", "M5")
	require.True(t, ok)
	assert.Equal(t, t0, cursor)

	// повторный тик с той же свечой — ничего нового
	require.NoError(t, s.SyncTick(context.Background()))
	assert.Len(t, notified, 1)
	assert.Equal(t, 1, st.count("EURUSD", "M5"))
}

func TestSyncTickFinalizesPreviousBar(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 10))), fv, st)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fv.push("EURUSD", "M5", bar("EURUSD", "M5", t0, 1.10))
	require.NoError(t, s.SyncTick(context.Background()))

	// свеча t0 закрылась с другим close, открылась t1
	final := bar("EURUSD", "M5", t0, 1.15)
	fv.rewriteLast("EURUSD", "M5", final)
	t1 := t0.Add(5 * time.Minute)
	fv.push("EURUSD", "M5", bar("EURUSD", "M5", t1, 1.16))

	require.NoError(t, s.SyncTick(context.Background()))

	stored, found, err := st.GetLatestBar(context.Background(), "EURUSD", "M5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, t1, stored.OpenTime)

	prev := st.bars[helper.PairKey("EURUSD", "M5")][t0.Unix()]
	assert.Equal(t, 1.15, prev.Close, "previous bar must carry final values")
	assert.Equal(t, 2, st.count("EURUSD", "M5"))
}

func TestSyncTickCursorNeverMovesBackward(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 10))), fv, st)

	t1 := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	fv.push("EURUSD", "M5", bar("EURUSD", "M5", t1, 1.11))
	require.NoError(t, s.SyncTick(context.Background()))

	// площадка внезапно отдаёт более старую свечу
	fv.rewriteLast("EURUSD", "M5", bar("EURUSD", "M5", t1.Add(-5*time.Minute), 1.09))

	notifications := 0
	s.AddBarListener(func(context.Context, string, string, models.PriceBar) { notifications++ })

	require.NoError(t, s.SyncTick(context.Background()))
	assert.Zero(t, notifications)

	cursor, _ := s.Cursor("EURUSD", "M5")
	assert.Equal(t, t1, cursor)
}

func TestSyncTickSkipsWholeTickWhenDisconnected(t *testing.T) {
	fv := newFakeVenue()
	fv.connected = false
	st := newMemStore()
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 10))), fv, st)

	err := s.SyncTick(context.Background())
	require.ErrorIs(t, err, venue.ErrUnavailable)
	assert.Zero(t, fv.fetches, "no pair must be polled without a connection")
}

func TestSyncTickPairFailureIsolated(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	cfg := testConfig(
		instrument("EURUSD", tf("M5", 10)),
		instrument("GBPUSD", tf("M5", 10)),
	)
	s := NewSynchronizer(cfg, fv, st)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fv.failFor[helper.PairKey("EURUSD", "M5")] = assert.AnError
	fv.push("GBPUSD", "M5", bar("GBPUSD", "M5", t0, 1.30))

	require.NoError(t, s.SyncTick(context.Background()))
	assert.Equal(t, 1, st.count("GBPUSD", "M5"), "healthy pair must still sync")
}

func TestSyncTickStoreFailureDoesNotAdvanceCursor(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	st.failing = true
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 10))), fv, st)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fv.push("EURUSD", "M5", bar("EURUSD", "M5", t0, 1.10))

	notifications := 0
	s.AddBarListener(func(context.Context, string, string, models.PriceBar) { notifications++ })

	require.NoError(t, s.SyncTick(context.Background()))
	_, seen := s.Cursor("EURUSD", "M5")
	assert.False(t, seen)
	assert.Zero(t, notifications)

	// после восстановления хранилища свеча прилетает как новая
	st.failing = false
	require.NoError(t, s.SyncTick(context.Background()))
	assert.Equal(t, 1, notifications)
}

func TestSeedCursorsFromStore(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 10))), fv, st)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertBar(context.Background(), bar("EURUSD", "M5", t0, 1.10)))

	s.SeedCursors(context.Background())
	cursor, ok := s.Cursor("EURUSD", "M5")
	require.True(t, ok)
	assert.Equal(t, t0, cursor)

	// та же свеча с площадки после рестарта — не новая
	fv.push("EURUSD", "M5", bar("EURUSD", "M5", t0, 1.10))
	notifications := 0
	s.AddBarListener(func(context.Context, string, string, models.PriceBar) { notifications++ })
	require.NoError(t, s.SyncTick(context.Background()))
	assert.Zero(t, notifications)
}

func TestBackfillStoresHistoryAndSeedsCursor(t *testing.T) {
	fv := newFakeVenue()
	st := newMemStore()
	s := NewSynchronizer(testConfig(instrument("EURUSD", tf("M5", 3))), fv, st)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		fv.push("EURUSD", "M5", bar("EURUSD", "M5", t0.Add(time.Duration(i)*5*time.Minute), 1.10+float64(i)*0.01))
	}

	s.Backfill(context.Background())
	assert.Equal(t, 3, st.count("EURUSD", "M5"))

	cursor, ok := s.Cursor("EURUSD", "M5")
	require.True(t, ok)
	assert.Equal(t, t0.Add(4*5*time.Minute), cursor)
}
