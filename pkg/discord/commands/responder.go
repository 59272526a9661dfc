package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/theme"
)

// InteractionResponder is the slice of discordgo.Session the responder uses.
type InteractionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Responder standardizes interaction replies across commands.
type Responder struct {
	session InteractionResponder
}

// NewResponder wraps a Discord session (or a test double).
func NewResponder(session InteractionResponder) *Responder {
	return &Responder{session: session}
}

// Success sends a visible success reply.
func (r *Responder) Success(i *discordgo.InteractionCreate, message string) error {
	return r.respond(i, "✅ "+message, 0)
}

// Error sends a visible error reply.
func (r *Responder) Error(i *discordgo.InteractionCreate, message string) error {
	return r.respond(i, "❌ "+message, 0)
}

// Ephemeral sends a reply only the invoking user can see.
func (r *Responder) Ephemeral(i *discordgo.InteractionCreate, message string) error {
	return r.respond(i, message, discordgo.MessageFlagsEphemeral)
}

// Embed sends a single embed, applying the theme's primary color when the
// embed has none.
func (r *Responder) Embed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	if embed.Color == 0 {
		embed.Color = theme.Current().Primary
	}
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func (r *Responder) respond(i *discordgo.InteractionCreate, content string, flags discordgo.MessageFlags) error {
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}
