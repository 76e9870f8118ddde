package service

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"
)

// Telegram шлёт торговые сигналы в чат. Без токена работает как
// no-op, движок от него не зависит.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		logger.Info("[NOTIFY] telegram not configured, notifications disabled")
		return &Telegram{}, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot init")
	}
	return &Telegram{bot: b, chatID: cfg.Telegram.ChatID}, nil
}

// NotifySignal — обработчик сигналов best-effort: ошибка отправки
// не влияет на исполнение.
func (t *Telegram) NotifySignal(ctx context.Context, sig models.Signal) error {
	if t.bot == nil {
		return nil
	}
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, formatSignal(sig)))
	if err != nil {
		return errors.Wrap(err, "telegram send")
	}
	return nil
}

func formatSignal(sig models.Signal) string {
	switch sig.Direction {
	case models.DirectionClose:
		return fmt.Sprintf("🛑 %s: закрытие позиций по %s (%s)", sig.Strategy, sig.Symbol, sig.Timeframe)
	case models.DirectionBuy:
		return fmt.Sprintf("📈 %s: BUY %s %s\nвход %.5f\nSL %.5f / TP %.5f",
			sig.Strategy, sig.Symbol, sig.Timeframe, sig.EntryPrice, sig.StopLoss, sig.TakeProfit)
	default:
		return fmt.Sprintf("📉 %s: SELL %s %s\nвход %.5f\nSL %.5f / TP %.5f",
			sig.Strategy, sig.Symbol, sig.Timeframe, sig.EntryPrice, sig.StopLoss, sig.TakeProfit)
	}
}
