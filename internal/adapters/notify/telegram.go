package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	Token      string
	ChatID     int64
	RatePerSec int
	// DedupWindow suppresses an identical notification repeated within the window.
	DedupWindow time.Duration
	PollTimeout time.Duration
}

type sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// TelegramNotifier posts notifications to a single Telegram chat.
type TelegramNotifier struct {
	bot     sender
	chat    *tele.Chat
	limiter *rate.Limiter
	window  time.Duration
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

var _ portssvc.Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier connects a bot with cfg.Token.
func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegramNotifier(b, cfg), nil
}

func newTelegramNotifier(b sender, cfg TelegramConfig) *TelegramNotifier {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = time.Hour
	}
	return &TelegramNotifier{
		bot:     b,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		window:  window,
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
}

// Notify implements portssvc.Notifier. It blocks on the rate limit until ctx ends.
func (t *TelegramNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	if t.duplicate(msg) {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.chat, formatMessage(msg), tele.ModeHTML); err != nil {
		t.forget(msg)
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

func (t *TelegramNotifier) duplicate(msg domain.Notification) bool {
	key := dedupKey(msg)
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, until := range t.seen {
		if now.After(until) {
			delete(t.seen, k)
		}
	}
	if until, ok := t.seen[key]; ok && now.Before(until) {
		return true
	}
	t.seen[key] = now.Add(t.window)
	return false
}

func (t *TelegramNotifier) forget(msg domain.Notification) {
	t.mu.Lock()
	delete(t.seen, dedupKey(msg))
	t.mu.Unlock()
}

func dedupKey(msg domain.Notification) string {
	return strings.Join([]string{msg.HouseholdID, msg.ScheduleID, string(msg.Level), msg.Title, msg.Message}, "|")
}

func formatMessage(msg domain.Notification) string {
	icon := "🔔"
	if msg.Level == domain.NotifyWarning {
		icon = "⚠️"
	}
	return fmt.Sprintf("%s <b>%s</b>\n%s", icon, html.EscapeString(msg.Title), html.EscapeString(msg.Message))
}
