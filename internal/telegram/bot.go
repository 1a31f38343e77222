package telegram

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const commandTimeout = time.Minute

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return newBot(bot, c), nil
}

func newBot(api API, c BotConfig) *Bot {
	return &Bot{
		api:           api,
		Config:        c,
		boardMessages: &boardMessages{ids: make(map[int64]int)},
	}
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = m.DisablePreview
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := b.api.Send(msg)
	return errors.Wrapf(err, "could not send message to %d", m.ChatID)
}

// SendPhoto sends a PNG with a MarkdownV2 caption.
func (b *Bot) SendPhoto(chatID int64, replyTo int, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: data,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.ReplyToMessageID = replyTo
	_, err := b.api.Send(photo)
	return errors.Wrapf(err, "could not send photo to %d", chatID)
}

// Deliver implements notify.Sink.
func (b *Bot) Deliver(ctx context.Context, channel int64, m notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == 0 {
		return errors.New("no delivery channel")
	}
	return b.SendMessage(Message{ChatID: channel, Text: m.Text, DisablePreview: m.DisablePreview})
}

type boardMessages struct {
	mu  sync.Mutex
	ids map[int64]int
}

// PostBoard keeps a single board message per chat up to date, editing it in
// place. A new message is sent the first time and whenever the edit fails.
func (b *Bot) PostBoard(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.boardMessages.mu.Lock()
	defer b.boardMessages.mu.Unlock()

	if id, ok := b.boardMessages.ids[chatID]; ok {
		edit := tgbotapi.NewEditMessageText(chatID, id, text)
		edit.ParseMode = tgbotapi.ModeMarkdownV2
		_, err := b.api.Send(edit)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		log.Debugf("could not edit board message %d in %d, sending a new one: %v", id, chatID, err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	sent, err := b.api.Send(msg)
	if err != nil {
		return errors.Wrapf(err, "could not post board to %d", chatID)
	}
	b.boardMessages.ids[chatID] = sent.MessageID
	return nil
}

// Run reads updates until ctx is cancelled and answers every command with h.
func (b *Bot) Run(ctx context.Context, h *Handler) error {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	updates := b.api.GetUpdatesChan(updatesConfig)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("updates channel closed")
			}
			if update.Message == nil || !update.Message.IsCommand() {
				log.Debug("Received non-message or non-command")
				continue
			}
			b.handleCommand(ctx, h, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, h *Handler, m *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	reply := h.Handle(ctx, requestFromMessage(m))
	if reply.IsEmpty() {
		return
	}

	var err error
	if reply.Photo != nil {
		err = b.SendPhoto(m.Chat.ID, m.MessageID, reply.Photo, reply.Caption)
	} else {
		err = b.SendMessage(Message{
			ChatID:         m.Chat.ID,
			MessageID:      m.MessageID,
			Text:           reply.Text,
			DisablePreview: true,
		})
	}
	if err != nil {
		log.Errorf("Failed to answer /%s: %v", m.Command(), err)
		return
	}
	metrics.CommandsProcessed.Inc()
}

func requestFromMessage(m *tgbotapi.Message) Request {
	r := Request{
		ChatID:  m.Chat.ID,
		Command: strings.ToLower(m.Command()),
		Args:    strings.TrimSpace(m.CommandArguments()),
	}
	if m.From != nil {
		r.UserID = m.From.ID
		r.UserName = displayName(m.From)
	}
	return r
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(fmt.Sprintf("%s %s", u.FirstName, u.LastName))
	if name == "" {
		return fmt.Sprintf("%d", u.ID)
	}
	return name
}
