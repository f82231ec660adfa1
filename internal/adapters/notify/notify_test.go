package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, what.(string))
	return &tele.Message{}, nil
}

func warning() domain.Notification {
	return domain.Notification{
		Level:       domain.NotifyWarning,
		HouseholdID: "hh",
		ScheduleID:  "s1",
		Title:       "Recurring transaction could not be created",
		Message:     `"Rent" was not posted: <category> gone`,
	}
}

func TestTelegramNotifierSendsEscapedHTML(t *testing.T) {
	bot := &fakeSender{}
	n := newTelegramNotifier(bot, TelegramConfig{ChatID: 42, RatePerSec: 100})

	require.NoError(t, n.Notify(context.Background(), warning()))

	require.Len(t, bot.sent, 1)
	assert.Contains(t, bot.sent[0], "<b>Recurring transaction could not be created</b>")
	assert.Contains(t, bot.sent[0], "&lt;category&gt;")
}

func TestTelegramNotifierSuppressesDuplicates(t *testing.T) {
	bot := &fakeSender{}
	n := newTelegramNotifier(bot, TelegramConfig{ChatID: 42, RatePerSec: 100, DedupWindow: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	require.NoError(t, n.Notify(context.Background(), warning()))
	require.NoError(t, n.Notify(context.Background(), warning()))
	assert.Len(t, bot.sent, 1)

	now = now.Add(2 * time.Minute)
	require.NoError(t, n.Notify(context.Background(), warning()))
	assert.Len(t, bot.sent, 2)
}

func TestTelegramNotifierRetriesAfterFailure(t *testing.T) {
	bot := &fakeSender{err: errors.New("network down")}
	n := newTelegramNotifier(bot, TelegramConfig{ChatID: 42, RatePerSec: 100})

	err := n.Notify(context.Background(), warning())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")

	bot.err = nil
	require.NoError(t, n.Notify(context.Background(), warning()))
	assert.Len(t, bot.sent, 1)
}

func TestTelegramNotifierHonoursContext(t *testing.T) {
	n := newTelegramNotifier(&fakeSender{}, TelegramConfig{ChatID: 42, RatePerSec: 1})
	require.NoError(t, n.Notify(context.Background(), warning()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other := warning()
	other.ScheduleID = "s2"
	assert.Error(t, n.Notify(ctx, other))
}

func TestNewTelegramNotifierValidatesConfig(t *testing.T) {
	_, err := NewTelegramNotifier(TelegramConfig{ChatID: 1})
	assert.Error(t, err)
	_, err = NewTelegramNotifier(TelegramConfig{Token: "x"})
	assert.Error(t, err)
}

func TestLogNotifierAndMulti(t *testing.T) {
	var buf bytes.Buffer
	logN := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	failing := newTelegramNotifier(&fakeSender{err: errors.New("boom")}, TelegramConfig{ChatID: 1, RatePerSec: 100})

	err := Multi{failing, logN}.Notify(context.Background(), warning())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	out := buf.String()
	assert.True(t, strings.Contains(out, "level=WARN"), out)
	assert.Contains(t, out, "schedule_id=s1")
}
