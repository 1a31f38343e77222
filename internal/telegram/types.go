package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
}

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot telegram interaction client
type Bot struct {
	api    API
	Config BotConfig

	boardMessages *boardMessages
}

// Message a telegram message struct
type Message struct {
	ChatID         int64
	MessageID      int
	Text           string
	DisablePreview bool
}

// Request is a parsed command addressed to the bot.
type Request struct {
	ChatID   int64
	UserID   int64
	UserName string
	Command  string
	Args     string
}

// Reply is what a command answers with: a text, or a photo with caption.
type Reply struct {
	Text    string
	Photo   []byte
	Caption string
}

func (r Reply) IsEmpty() bool {
	return r.Text == "" && r.Photo == nil
}
