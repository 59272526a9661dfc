package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/log"
)

// Router registers slash commands with Discord and routes interactions to
// their handlers.
type Router struct {
	session   *discordgo.Session
	responder *Responder
	commands  map[string]Command
}

// NewRouter builds an empty router bound to a session.
func NewRouter(session *discordgo.Session) *Router {
	return &Router{
		session:   session,
		responder: NewResponder(session),
		commands:  make(map[string]Command),
	}
}

// Register adds a command to the router. Definitions are pushed to Discord
// by Sync.
func (r *Router) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Sync overwrites the application's registered commands with the router's
// set. An empty guildID registers the commands globally.
func (r *Router) Sync(appID, guildID string) error {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		defs = append(defs, cmd.Definition())
	}
	if _, err := r.session.ApplicationCommandBulkOverwrite(appID, guildID, defs); err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	log.DiscordLogger().Info("slash commands registered", "count", len(defs))
	return nil
}

// HandleInteraction is the discordgo interaction handler. Attach with
// session.AddHandler.
func (r *Router) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	cmd, ok := r.commands[data.Name]
	if !ok {
		log.DiscordLogger().Warn("unknown command invoked", "command", data.Name)
		r.responder.Error(i, "Unknown command.")
		return
	}

	ctx := r.buildContext(s, i)
	if err := cmd.Handle(ctx); err != nil {
		log.ErrorLogger().Error("command handler failed", "command", data.Name, "err", err)
		r.responder.Error(i, "An error occurred while executing the command.")
	}
}

func (r *Router) buildContext(s *discordgo.Session, i *discordgo.InteractionCreate) *Context {
	ctx := &Context{
		Context:     context.Background(),
		Session:     s,
		Interaction: i,
		Responder:   r.responder,
		GuildID:     i.GuildID,
		Options:     make(map[string]*discordgo.ApplicationCommandInteractionDataOption),
	}

	if i.Member != nil && i.Member.User != nil {
		ctx.UserID = i.Member.User.ID
	} else if i.User != nil {
		ctx.UserID = i.User.ID
	}

	// Flatten one level of subcommand nesting.
	opts := i.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		ctx.Subcommand = opts[0].Name
		opts = opts[0].Options
	}
	for _, opt := range opts {
		ctx.Options[opt.Name] = opt
	}
	return ctx
}
