// Package alert reports failures of background jobs to an operator channel.
package alert

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

type Alerter interface {
	Alert(ctx context.Context, message string) error
}

// LogAlerter writes alerts to the log only.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, message string) error {
	log.Warn().Str("alert", message).Msg("job alert")
	return nil
}

// DiscordAlerter posts alerts to a Discord channel with a bot token.
type DiscordAlerter struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordAlerter(botToken, channelID string) (*DiscordAlerter, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordAlerter{
		session:   session,
		channelID: channelID,
	}, nil
}

func (a *DiscordAlerter) Alert(ctx context.Context, message string) error {
	if _, err := a.session.ChannelMessageSend(a.channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to post alert to discord: %w", err)
	}
	return nil
}
