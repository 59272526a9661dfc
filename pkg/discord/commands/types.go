// Package commands implements the bot's slash commands: premium
// administration, game server registration, event monitor control, and
// command metrics.
package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Command is one top-level slash command.
type Command interface {
	Name() string
	Definition() *discordgo.ApplicationCommand
	Handle(ctx *Context) error
}

// Context carries one interaction through a command handler.
type Context struct {
	Context     context.Context
	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
	Responder   *Responder

	GuildID    string
	UserID     string
	Subcommand string
	Options    map[string]*discordgo.ApplicationCommandInteractionDataOption
}

// StringOption returns a string option's value, empty when absent.
func (c *Context) StringOption(name string) string {
	if opt, ok := c.Options[name]; ok {
		return opt.StringValue()
	}
	return ""
}

// IntOption returns an integer option's value, zero when absent.
func (c *Context) IntOption(name string) int64 {
	if opt, ok := c.Options[name]; ok {
		return opt.IntValue()
	}
	return 0
}

// BoolOption returns a boolean option's value, false when absent.
func (c *Context) BoolOption(name string) bool {
	if opt, ok := c.Options[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// ChannelOption returns a channel option's ID, empty when absent.
func (c *Context) ChannelOption(name string) string {
	if opt, ok := c.Options[name]; ok {
		if ch := opt.ChannelValue(nil); ch != nil {
			return ch.ID
		}
	}
	return ""
}
