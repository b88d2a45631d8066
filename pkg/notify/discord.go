package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
)

// DiscordBot wraps the Discord session. It delivers notices to one channel
// and answers the !sync and !status commands.
type DiscordBot struct {
	Session    *discordgo.Session
	ChannelID  string
	Controller Controller
	log        zerolog.Logger
}

// NewDiscordBot creates a new Discord bot bound to one channel.
func NewDiscordBot(token, channelID string, ctrl Controller) (*DiscordBot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	bot := &DiscordBot{
		Session:    dg,
		ChannelID:  channelID,
		Controller: ctrl,
		log:        logging.Component("discord"),
	}

	dg.AddHandler(bot.messageCreate)

	return bot, nil
}

// Start opens the websocket connection
func (b *DiscordBot) Start() error {
	return b.Session.Open()
}

// Stop closes the websocket connection
func (b *DiscordBot) Stop() error {
	return b.Session.Close()
}

// Notify delivers a sync notice to the configured channel.
func (b *DiscordBot) Notify(msg string) {
	if _, err := b.Session.ChannelMessageSend(b.ChannelID, msg); err != nil {
		b.log.Error().Err(err).Msg("failed to send Discord notice")
	}
}

func (b *DiscordBot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore messages from self
	if m.Author.ID == s.State.User.ID {
		return
	}
	if b.ChannelID != "" && m.ChannelID != b.ChannelID {
		return
	}

	switch m.Content {
	case "!sync":
		b.Controller.RequestSync()
		b.send(m.ChannelID, "Sync requested")
	case "!status":
		b.send(m.ChannelID, b.Controller.StatusLine())
	}
}

func (b *DiscordBot) send(channelID, text string) {
	if _, err := b.Session.ChannelMessageSend(channelID, text); err != nil {
		b.log.Error().Err(err).Msg("failed to send Discord reply")
	}
}
