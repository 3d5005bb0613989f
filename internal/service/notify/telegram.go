package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram mirrors tip notifications into one chat.
type Telegram struct {
	sender messageSender
	chat   *tele.Chat
}

// NewTelegram builds a send-only bot. No poller is started.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token/chat: %w", drepo.ErrConfigMissing)
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegram(b, chatID), nil
}

func newTelegram(sender messageSender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chat: &tele.Chat{ID: chatID}}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Broadcast(ctx context.Context, _ string, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.sender.Send(t.chat, FormatMessage(n)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) Close() error { return nil }

// FormatMessage renders a notification as plain text.
func FormatMessage(n models.Notification) string {
	d := n.Data
	lines := []string{
		n.Title,
		n.Body,
		"",
		fmt.Sprintf("Entry %s | Stop %s", d["entry_price"], d["stop_loss"]),
		fmt.Sprintf("TP1 %s | TP2 %s | R:R %s", d["take_profit_1"], d["take_profit_2"], d["risk_reward_ratio"]),
		fmt.Sprintf("Horizon %s | Confidence %s%%", d["target_timeframe"], d["confidence"]),
	}
	if id := d["trackingId"]; id != "" {
		lines = append(lines, "ID "+id)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var _ drepo.Broadcaster = (*Telegram)(nil)
