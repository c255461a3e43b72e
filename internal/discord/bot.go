// Package discord implements an optional, one-way notification sink: it
// mirrors supervisor ControlBot admin alerts (worker crashed, auto-restarted,
// health check failed) to a Discord channel when DISCORD_BOT_TOKEN is
// configured. Uses the same discordgo.New/session.Open/ChannelMessageSend
// session wiring as a two-way agent-chat bot would, stripped of the chat
// machinery (active sessions, response channels, command routing) this
// system has no use for: Discord here never receives input, only relays
// supervisor output.
package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Sink sends one-way admin notifications to a single Discord channel.
type Sink struct {
	session   *discordgo.Session
	channelID string
}

// New connects to Discord as token and targets channelID for every
// notification.
func New(token, channelID string) (*Sink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: creating session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: opening session: %w", err)
	}
	return &Sink{session: session, channelID: channelID}, nil
}

// Notify posts text to the configured channel.
func (s *Sink) Notify(text string) error {
	_, err := s.session.ChannelMessageSend(s.channelID, text)
	if err != nil {
		return fmt.Errorf("discord: sending notification: %w", err)
	}
	return nil
}

// Close disconnects from Discord.
func (s *Sink) Close() error {
	return s.session.Close()
}
