package service

import (
	"context"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"

	"github.com/bytedance/sonic"
)

const tickStaleAfter = 5 * time.Second

// RunTickStream держит один WebSocket на мост с подпиской на все символы
// и складывает последние bid/ask в кэш. Падение соединения — реконнект
// с паузой; REST-путь GetTick продолжает работать без фида.
func (c *Client) RunTickStream(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	url := "ws://" + c.cfg.Bridge.Addr + "/api/v1/ticks"

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("[WS] tick stream connect, %d symbols", len(symbols))
		conn, _, err := c.wsDialer.Dial(url, nil)
		if err != nil {
			logger.Warn("[WS] dial error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		sub := map[string]any{
			"op":      "subscribe",
			"symbols": symbols,
		}
		if err := conn.WriteJSON(sub); err != nil {
			logger.Warn("[WS] subscribe error: %v", err)
			_ = conn.Close()
			continue
		}

		// рвём ReadMessage при отмене контекста
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Warn("[WS] read error: %v", err)
				_ = conn.Close()
				break
			}

			var frame struct {
				Symbol string  `json:"symbol"`
				Bid    float64 `json:"bid"`
				Ask    float64 `json:"ask"`
			}
			if err := sonic.Unmarshal(msg, &frame); err != nil {
				continue
			}
			if frame.Symbol == "" || frame.Bid <= 0 || frame.Ask <= 0 {
				continue
			}

			c.mu.Lock()
			c.ticks[frame.Symbol] = models.Tick{
				Symbol: frame.Symbol,
				Bid:    frame.Bid,
				Ask:    frame.Ask,
				At:     time.Now(),
			}
			c.mu.Unlock()
		}
		close(done)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
