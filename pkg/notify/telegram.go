package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
)

// TelegramBot wraps the Telegram bot API. It delivers notices to one chat
// and answers the /sync and /status commands.
type TelegramBot struct {
	API        *tgbotapi.BotAPI
	ChatID     int64
	Controller Controller
	stopCh     chan struct{}
	log        zerolog.Logger
}

// NewTelegramBot creates a new Telegram bot bound to one chat.
func NewTelegramBot(token string, chatID int64, ctrl Controller) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating Telegram bot: %w", err)
	}

	return &TelegramBot{
		API:        api,
		ChatID:     chatID,
		Controller: ctrl,
		stopCh:     make(chan struct{}),
		log:        logging.Component("telegram"),
	}, nil
}

// Start begins polling for updates in a goroutine
func (b *TelegramBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.API.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-b.stopCh:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					b.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop stops polling for updates
func (b *TelegramBot) Stop() {
	close(b.stopCh)
	b.API.StopReceivingUpdates()
}

// Notify delivers a sync notice to the configured chat.
func (b *TelegramBot) Notify(msg string) {
	reply := tgbotapi.NewMessage(b.ChatID, msg)
	if _, err := b.API.Send(reply); err != nil {
		b.log.Error().Err(err).Msg("failed to send Telegram notice")
	}
}

func (b *TelegramBot) handleMessage(msg *tgbotapi.Message) {
	if msg.Chat.ID != b.ChatID {
		return
	}
	switch msg.Text {
	case "/sync":
		b.Controller.RequestSync()
		b.reply(msg, "Sync requested")
	case "/status":
		b.reply(msg, b.Controller.StatusLine())
	}
}

func (b *TelegramBot) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	if _, err := b.API.Send(reply); err != nil {
		b.log.Error().Err(err).Msg("failed to send Telegram reply")
	}
}
