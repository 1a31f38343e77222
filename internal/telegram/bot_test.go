package telegram

import (
	"context"
	"sync"
	"testing"

	"crypto-alert-bot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	nextID  int
	editErr error
	updates chan tgbotapi.Update
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.editErr != nil {
		return tgbotapi.Message{}, f.editErr
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) messages() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

func TestDeliver(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, BotConfig{})

	require.NoError(t, b.Deliver(context.Background(), -100, notify.Message{Text: "hi", DisablePreview: true}))
	require.Len(t, api.sent, 1)
	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.True(t, msg.DisableWebPagePreview)

	assert.Error(t, b.Deliver(context.Background(), 0, notify.Message{Text: "hi"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, b.Deliver(ctx, -100, notify.Message{Text: "hi"}))
	assert.Len(t, api.sent, 1)
}

func TestPostBoardEditsInPlace(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, BotConfig{})
	ctx := context.Background()

	require.NoError(t, b.PostBoard(ctx, -200, "board 1"))
	require.NoError(t, b.PostBoard(ctx, -200, "board 2"))
	require.Len(t, api.sent, 2)
	_, isNew := api.sent[0].(tgbotapi.MessageConfig)
	assert.True(t, isNew)
	edit, isEdit := api.sent[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, isEdit)
	assert.Equal(t, 1, edit.MessageID)

	api.editErr = errors.New("Bad Request: message is not modified")
	require.NoError(t, b.PostBoard(ctx, -200, "board 2"))
	assert.Len(t, api.sent, 3)

	api.editErr = errors.New("Bad Request: message to edit not found")
	require.NoError(t, b.PostBoard(ctx, -200, "board 3"))
	require.Len(t, api.sent, 5)
	_, isNew = api.sent[4].(tgbotapi.MessageConfig)
	assert.True(t, isNew)
}

func commandUpdate(text string, length int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: -100},
		From:      &tgbotapi.User{ID: 42, FirstName: "Satoshi"},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func TestRunAnswersCommands(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	b := newBot(api, BotConfig{})
	f := newFixture()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- b.Run(ctx, f.h) }()

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "gm", Chat: &tgbotapi.Chat{ID: -100}}}
	api.updates <- commandUpdate("/chart btc", 6)
	api.updates <- commandUpdate("/set_alert btc 65000", 10)
	cancel()
	require.NoError(t, <-done)

	sent := api.messages()
	require.Len(t, sent, 2)
	photo, ok := sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, 10, photo.ReplyToMessageID)

	msg := sent[1].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "ALERT SET SUCCESSFULLY")
	require.Len(t, f.announcer.created, 1)
	assert.Equal(t, "Satoshi", f.announcer.created[0].OwnerName)
}

func TestRequestFromMessage(t *testing.T) {
	u := commandUpdate("/Price@crypto_bot  btc  hl ", 17)
	u.Message.From.UserName = "sn"
	r := requestFromMessage(u.Message)
	assert.Equal(t, "price", r.Command)
	assert.Equal(t, "btc  hl", r.Args)
	assert.Equal(t, "sn", r.UserName)
	assert.Equal(t, int64(42), r.UserID)
}
