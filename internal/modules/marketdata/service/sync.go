package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	venue "trade_engine/internal/modules/venue/service"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

// BarListener получает уведомление о новой закрытой свече.
// Вызывается синхронно внутри тика синхронизатора; порядок уведомлений
// в рамках одной пары (symbol, timeframe) строгий.
type BarListener func(ctx context.Context, symbol, timeframe string, bar models.PriceBar)

// Synchronizer опрашивает площадку по матрице инструмент×таймфрейм,
// детектит новые свечи по курсору open_time и раздаёт их подписчикам.
type Synchronizer struct {
	cfg   *config.Config
	venue venue.Venue
	store BarStore

	mu      sync.Mutex
	cursors map[string]time.Time // PairKey -> open_time последней увиденной свечи

	lmu       sync.RWMutex
	listeners []BarListener
}

func NewSynchronizer(cfg *config.Config, v venue.Venue, store BarStore) *Synchronizer {
	return &Synchronizer{
		cfg:     cfg,
		venue:   v,
		store:   store,
		cursors: make(map[string]time.Time),
	}
}

// AddBarListener — регистрация только аддитивная, отписки нет.
func (s *Synchronizer) AddBarListener(l BarListener) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()
}

// Cursor возвращает курсор пары (для статуса и тестов).
func (s *Synchronizer) Cursor(symbol, timeframe string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cursors[helper.PairKey(symbol, timeframe)]
	return t, ok
}

// SeedCursors инициализирует курсоры последними сохранёнными свечами,
// чтобы после рестарта не прогонять старые бары как новые.
func (s *Synchronizer) SeedCursors(ctx context.Context) {
	for _, pair := range s.cfg.Pairs() {
		bar, found, err := s.store.GetLatestBar(ctx, pair.Symbol, pair.Timeframe)
		if err != nil {
			logger.Error("[SYNC] seed cursor %s %s: %v", pair.Symbol, pair.Timeframe, err)
			continue
		}
		if !found {
			continue
		}
		s.advanceCursor(pair.Symbol, pair.Timeframe, bar.OpenTime)
	}
}

// Backfill подтягивает стартовую историю по всем парам.
// Ошибки по отдельным парам не валят прогрев целиком.
func (s *Synchronizer) Backfill(ctx context.Context) {
	for _, pair := range s.cfg.Pairs() {
		bars, err := s.venue.FetchRecentBars(ctx, pair.Symbol, pair.Timeframe, pair.HistorySize, 0)
		if err != nil {
			logger.Error("[SYNC] backfill %s %s: %v", pair.Symbol, pair.Timeframe, err)
			continue
		}
		stored := 0
		for _, bar := range bars {
			if err := s.store.UpsertBar(ctx, bar); err != nil {
				logger.Error("[SYNC] backfill upsert %s %s: %v", pair.Symbol, pair.Timeframe, err)
				continue
			}
			stored++
		}
		if n := len(bars); n > 0 {
			s.advanceCursor(pair.Symbol, pair.Timeframe, bars[n-1].OpenTime)
		}
		logger.Info("[SYNC] backfill %s %s: %d bars", pair.Symbol, pair.Timeframe, stored)
	}
}

// SyncTick — один проход по всей матрице. Возвращает ошибку только при
// потере соединения: тогда весь тик пропускается и повторяется позже,
// закэшированные свечи не трогаем.
func (s *Synchronizer) SyncTick(ctx context.Context) error {
	span, ctx := tracing.CreateChildSpan(ctx, "marketdata.SyncTick")
	defer span.Finish()

	if err := s.venue.EnsureConnected(ctx); err != nil {
		return err
	}

	for _, pair := range s.cfg.Pairs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.syncPair(ctx, pair.Symbol, pair.Timeframe); err != nil {
			// ошибка одной пары не прерывает остальные
			logger.Error("[SYNC] %s %s: %v", pair.Symbol, pair.Timeframe, err)
		}
	}
	return nil
}

func (s *Synchronizer) syncPair(ctx context.Context, symbol, timeframe string) error {
	latest, err := s.venue.FetchRecentBars(ctx, symbol, timeframe, 1, 0)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		return nil
	}
	bar := latest[0]

	cursor, seen := s.cursorFor(symbol, timeframe)
	if seen && !bar.OpenTime.After(cursor) {
		// свеча ещё формируется — ничего не персистим
		return nil
	}

	// Закрывшуюся предыдущую свечу перечитываем один раз с финальными
	// значениями: тиковое формирование могло оставить неточности.
	if seen {
		if err := s.finalizePrevious(ctx, symbol, timeframe); err != nil {
			return err
		}
	}

	if err := s.store.UpsertBar(ctx, bar); err != nil {
		return err
	}
	s.advanceCursor(symbol, timeframe, bar.OpenTime)
	logger.Info("[SYNC] new %s bar for %s at %s", timeframe, symbol, bar.OpenTime.Format(time.RFC3339))

	s.notify(ctx, symbol, timeframe, bar)
	return nil
}

func (s *Synchronizer) finalizePrevious(ctx context.Context, symbol, timeframe string) error {
	prev, err := s.venue.FetchRecentBars(ctx, symbol, timeframe, 1, 1)
	if err != nil {
		return err
	}
	if len(prev) == 0 {
		return nil
	}
	return s.store.UpsertBar(ctx, prev[0])
}

func (s *Synchronizer) cursorFor(symbol, timeframe string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cursors[helper.PairKey(symbol, timeframe)]
	return t, ok
}

// advanceCursor — единственная точка записи курсора, только вперёд.
func (s *Synchronizer) advanceCursor(symbol, timeframe string, t time.Time) {
	key := helper.PairKey(symbol, timeframe)
	s.mu.Lock()
	if cur, ok := s.cursors[key]; !ok || t.After(cur) {
		s.cursors[key] = t
	}
	s.mu.Unlock()
}

func (s *Synchronizer) notify(ctx context.Context, symbol, timeframe string, bar models.PriceBar) {
	s.lmu.RLock()
	listeners := s.listeners
	s.lmu.RUnlock()
	for _, l := range listeners {
		l(ctx, symbol, timeframe, bar)
	}
}

// Run крутит цикл опроса до отмены контекста. При потере соединения
// пауза retry_delay вместо обычного интервала.
func (s *Synchronizer) Run(ctx context.Context) {
	logger.Info("[SYNC] loop started, interval=%s", s.cfg.Sync.Interval)
	for {
		delay := s.cfg.Sync.Interval
		if err := s.SyncTick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Warn("[SYNC] tick skipped: %v", err)
			delay = s.cfg.Sync.RetryDelay
		}

		select {
		case <-ctx.Done():
			logger.Info("[SYNC] loop stopped")
			return
		case <-time.After(delay):
		}
	}
	logger.Info("[SYNC] loop stopped")
}
