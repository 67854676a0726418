package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
)

type recordingSender struct {
	name  string
	err   error
	delay time.Duration

	mu     sync.Mutex
	alerts []*models.Alert
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) Send(ctx context.Context, alert *models.Alert) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func testAlert(kind models.AlertKind, mirror bool) *models.Alert {
	return &models.Alert{
		ID:        "a-1",
		Kind:      kind,
		Severity:  models.SeverityCritical,
		ChainID:   "cosmoshub-4",
		Title:     "Validator jailed",
		ChannelID: "chan-1",
		Mirror:    mirror,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcherDeliversAndMirrors(t *testing.T) {
	primary := &recordingSender{name: "primary"}
	mirror := &recordingSender{name: "mirror"}
	mm := metrics.NewManager()
	d := NewDispatcher(DispatcherConfig{QueueSize: 10, Workers: 2}, primary, []Sender{mirror}, mm)
	require.NoError(t, d.Start(context.Background()))

	d.Notify(context.Background(), testAlert(models.AlertKindJailed, true))
	d.Notify(context.Background(), testAlert(models.AlertKindJailed, false))
	require.NoError(t, d.Stop())

	assert.Equal(t, 2, primary.count())
	assert.Equal(t, 1, mirror.count())

	stats := d.GetStats()
	assert.Equal(t, uint64(2), stats.Queued)
	assert.Equal(t, uint64(3), stats.Sent)
	assert.Equal(t, float64(2), testutil.ToFloat64(
		mm.GetPrometheusMetrics().NotificationsSentTotal.WithLabelValues("primary", "jailed")))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	primary := &recordingSender{name: "primary"}
	mm := metrics.NewManager()
	d := NewDispatcher(DispatcherConfig{QueueSize: 1, Workers: 1}, primary, nil, mm)

	// not started, so nothing drains the queue
	require.NoError(t, d.Enqueue(testAlert(models.AlertKindJailed, false)))
	err := d.Enqueue(testAlert(models.AlertKindJailed, false))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), d.GetStats().Dropped)
	assert.Equal(t, float64(1), testutil.ToFloat64(mm.GetPrometheusMetrics().AlertsDroppedTotal))
}

func TestDispatcherFailureDoesNotStopWorkers(t *testing.T) {
	primary := &recordingSender{name: "primary", err: errors.New("boom")}
	d := NewDispatcher(DispatcherConfig{QueueSize: 10, Workers: 1}, primary, nil, nil)
	require.NoError(t, d.Start(context.Background()))

	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), testAlert(models.AlertKindStatusChanged, false))
	}
	require.NoError(t, d.Stop())

	assert.Equal(t, 3, primary.count())
	assert.Equal(t, uint64(3), d.GetStats().Failed)
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, &recordingSender{name: "p"}, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())

	assert.Error(t, d.Enqueue(testAlert(models.AlertKindJailed, false)))
	assert.False(t, d.IsHealthy())
}

type fakeSession struct {
	channelID string
	msg       *discordgo.MessageSend
	err       error
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.msg = data
	return &discordgo.Message{}, f.err
}

func TestDiscordSenderBuildsEmbed(t *testing.T) {
	session := &fakeSession{}
	alert := testAlert(models.AlertKindJailed, false)
	alert.MentionHere = true
	alert.MentionUserIDs = []string{"u1", "u2"}
	alert.AddField("Validator", "Alice", true)

	require.NoError(t, NewDiscordSender(session).Send(context.Background(), alert))
	assert.Equal(t, "chan-1", session.channelID)
	require.Len(t, session.msg.Embeds, 1)

	embed := session.msg.Embeds[0]
	assert.Equal(t, colorCritical, embed.Color)
	assert.Contains(t, embed.Title, "Validator jailed")
	assert.Equal(t, "2024-05-01T12:00:00Z", embed.Timestamp)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Alice", embed.Fields[0].Value)

	assert.Equal(t, "@here <@u1> <@u2>", session.msg.Content)
	assert.Equal(t, []string{"u1", "u2"}, session.msg.AllowedMentions.Users)
	assert.Equal(t, []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone}, session.msg.AllowedMentions.Parse)
}

func TestDiscordSenderErrors(t *testing.T) {
	sender := NewDiscordSender(&fakeSession{err: errors.New("rate limited")})
	assert.Error(t, sender.Send(context.Background(), testAlert(models.AlertKindJailed, false)))

	noChannel := testAlert(models.AlertKindJailed, false)
	noChannel.ChannelID = ""
	assert.Error(t, NewDiscordSender(&fakeSession{}).Send(context.Background(), noChannel))
}

func TestBuildMessageWithoutMentions(t *testing.T) {
	msg := BuildMessage(testAlert(models.AlertKindUnjailed, false))
	assert.Empty(t, msg.Content)
	assert.Nil(t, msg.AllowedMentions)
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramSender(t *testing.T) {
	bot := &fakeBot{}
	require.NoError(t, NewTelegramSender(bot, 42).Send(context.Background(), testAlert(models.AlertKindJailed, true)))
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "Validator jailed")
	assert.Contains(t, msg.Text, "cosmoshub-4")
}

func TestWebhookSenderRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		var payload WebhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, models.AlertKindJailed, payload.Alert.Kind)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{
		URLs:       []string{srv.URL},
		Headers:    map[string]string{"X-Token": "secret"},
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, sender.Send(context.Background(), testAlert(models.AlertKindJailed, true)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSenderGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{URLs: []string{srv.URL}, MaxRetries: 2, RetryDelay: time.Millisecond})
	assert.Error(t, sender.Send(context.Background(), testAlert(models.AlertKindJailed, true)))
}

func TestWebhookRetryDelayCapped(t *testing.T) {
	sender := NewWebhookSender(WebhookConfig{RetryDelay: time.Second, MaxDelay: 3 * time.Second})
	assert.Equal(t, time.Second, sender.retryDelay(2))
	assert.Equal(t, 2*time.Second, sender.retryDelay(3))
	assert.Equal(t, 3*time.Second, sender.retryDelay(4))
}

func TestRenderText(t *testing.T) {
	alert := testAlert(models.AlertKindMissedBlocks, false)
	alert.Severity = models.SeverityWarning
	alert.Description = "Missed blocks crossed the threshold"
	alert.AddField("Missed", "55", true)

	text := RenderText(alert)
	assert.Contains(t, text, "[WARNING] Validator jailed")
	assert.Contains(t, text, "Chain: cosmoshub-4")
	assert.Contains(t, text, "Missed: 55")
}
