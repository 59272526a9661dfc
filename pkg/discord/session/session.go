// Package session owns the discordgo session bootstrap.
package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/log"
)

// Indirections for tests; production code never swaps these.
var (
	newSession   = func(token string) (*discordgo.Session, error) { return discordgo.New("Bot " + token) }
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// NewDiscordSession creates, configures, and opens a Discord gateway
// session. The session is closed again if the gateway connect fails.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}

	s, err := newSession(token)
	if err != nil {
		log.DiscordLogger().Error("failed to create Discord session", "err", err)
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Slash commands plus channel notifications only; no privileged
	// message-content intent needed.
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	log.DiscordLogger().Info("🔗 Connecting to Discord...")
	if err := openSession(s); err != nil {
		closeSession(s)
		log.DiscordLogger().Error("failed to connect to Discord", "err", err)
		return nil, fmt.Errorf("failed to connect to Discord: %w", err)
	}

	log.DiscordLogger().Info("✅ Connected to Discord")
	return s, nil
}
