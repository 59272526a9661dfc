// Package notify renders monitor output as Discord embeds.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/storage"
	"github.com/toweroftemptation/towerbot/pkg/theme"
)

// ChannelSender is the slice of discordgo.Session the notifier needs.
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// EmbedNotifier implements the monitor notification surface with themed
// embeds.
type EmbedNotifier struct {
	sender ChannelSender
}

// NewEmbedNotifier wraps a Discord session (or a test double).
func NewEmbedNotifier(sender ChannelSender) *EmbedNotifier {
	return &EmbedNotifier{sender: sender}
}

var eventTitles = map[string]string{
	"mission":        "🎯 Mission",
	"airdrop":        "🪂 Airdrop",
	"crash":          "💥 Crash",
	"heli crash":     "🚁 Heli Crash",
	"trader":         "💰 Trader",
	"convoy":         "🚚 Convoy",
	"encounter":      "⚔️ Encounter",
	"server restart": "🔄 Server Restart",
}

var dangerEvents = map[string]bool{
	"crash":          true,
	"heli crash":     true,
	"server restart": true,
}

// NotifyEvent posts a game event embed.
func (n *EmbedNotifier) NotifyEvent(channelID string, srv storage.GameServer, eventType, message string, ts time.Time) error {
	title, ok := eventTitles[eventType]
	if !ok {
		title = "📢 " + capitalize(eventType)
	}
	color := theme.Current().EventAlert
	if dangerEvents[eventType] {
		color = theme.Current().EventDanger
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       color,
		Footer:      serverFooter(srv),
		Timestamp:   ts.Format(time.RFC3339),
	}
	_, err := n.sender.ChannelMessageSendEmbed(channelID, embed)
	return err
}

// NotifyConnection posts a player connect/disconnect embed.
func (n *EmbedNotifier) NotifyConnection(channelID string, srv storage.GameServer, action, message string, ts time.Time) error {
	title := "🟢 Player Connected"
	color := theme.Current().PlayerJoin
	if action == "disconnected" {
		title = "🔴 Player Disconnected"
		color = theme.Current().PlayerLeave
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       color,
		Footer:      serverFooter(srv),
		Timestamp:   ts.Format(time.RFC3339),
	}
	_, err := n.sender.ChannelMessageSendEmbed(channelID, embed)
	return err
}

// NotifyVoiceCall posts a voice call embed.
func (n *EmbedNotifier) NotifyVoiceCall(channelID string, srv storage.GameServer, message string, ts time.Time) error {
	embed := &discordgo.MessageEmbed{
		Title:       "📞 Voice Call",
		Description: message,
		Color:       theme.Current().VoiceCall,
		Footer:      serverFooter(srv),
		Timestamp:   ts.Format(time.RFC3339),
	}
	_, err := n.sender.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func serverFooter(srv storage.GameServer) *discordgo.MessageEmbedFooter {
	name := srv.Name
	if name == "" {
		name = srv.ServerID
	}
	return &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("%s (%s)", name, srv.ServerID),
	}
}
