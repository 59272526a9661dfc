package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/guard"
	"github.com/toweroftemptation/towerbot/pkg/storage"
	"github.com/toweroftemptation/towerbot/pkg/theme"
)

// ServerStore is the storage surface for the /server command.
type ServerStore interface {
	UpsertServer(srv storage.GameServer) error
	ListServers(guildID string) ([]storage.GameServer, error)
	DeleteServer(guildID, serverID string) (bool, error)
}

// ServerCommand implements /server: registering, listing, and removing the
// game servers a guild monitors.
type ServerCommand struct {
	store     ServerStore
	guardrail *guard.Guard
}

// NewServerCommand wires the server registry command.
func NewServerCommand(store ServerStore, guardrail *guard.Guard) *ServerCommand {
	return &ServerCommand{store: store, guardrail: guardrail}
}

func (c *ServerCommand) Name() string { return "server" }

func (c *ServerCommand) Definition() *discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	minPort := float64(1)

	return &discordgo.ApplicationCommand{
		Name:                     "server",
		Description:              "Manage this guild's registered game servers",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Register a game server",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "server_id", Description: "Short identifier (lowercase)", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "host", Description: "SFTP host", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "username", Description: "SFTP username", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "password", Description: "SFTP password", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "log_path", Description: "Remote log file path", Required: true},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "port", Description: "SFTP port (default 22)", MinValue: &minPort},
					{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Display name"},
					{Type: discordgo.ApplicationCommandOptionChannel, Name: "events_channel", Description: "Channel for event notifications"},
					{Type: discordgo.ApplicationCommandOptionChannel, Name: "connections_channel", Description: "Channel for player connections"},
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: "voice_notifications", Description: "Notify on voice calls"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List registered game servers",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove a registered game server",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "server_id", Description: "Server to remove", Required: true},
				},
			},
		},
	}
}

func (c *ServerCommand) Handle(ctx *Context) error {
	switch ctx.Subcommand {
	case "add":
		return c.add(ctx)
	case "list":
		return c.list(ctx)
	case "remove":
		return c.remove(ctx)
	default:
		return ctx.Responder.Error(ctx.Interaction, "Unknown subcommand.")
	}
}

func (c *ServerCommand) add(ctx *Context) error {
	cfg := guard.Config{
		Name:             "server.add",
		GuildOnly:        true,
		Cooldown:         5 * time.Second,
		CheckServerLimit: true,
	}
	return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
		serverID := guard.NormalizeServerID(ctx.StringOption("server_id"))
		if !guard.ValidServerID(serverID) {
			return ctx.Responder.Error(ctx.Interaction, fmt.Sprintf("Invalid server ID format: %s", ctx.StringOption("server_id")))
		}

		port := int(ctx.IntOption("port"))
		if port == 0 {
			port = 22
		}
		name := ctx.StringOption("name")
		if name == "" {
			name = serverID
		}

		srv := storage.GameServer{
			GuildID:              inv.GuildID,
			ServerID:             serverID,
			Name:                 name,
			Host:                 ctx.StringOption("host"),
			Port:                 port,
			Username:             ctx.StringOption("username"),
			Password:             ctx.StringOption("password"),
			LogPath:              ctx.StringOption("log_path"),
			EventsChannelID:      ctx.ChannelOption("events_channel"),
			ConnectionsChannelID: ctx.ChannelOption("connections_channel"),
			VoiceNotifications:   ctx.BoolOption("voice_notifications"),
		}
		if err := c.store.UpsertServer(srv); err != nil {
			return err
		}
		return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Server '%s' registered.", serverID))
	})
}

func (c *ServerCommand) list(ctx *Context) error {
	cfg := guard.Config{Name: "server.list", GuildOnly: true, Cooldown: 3 * time.Second}
	return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
		servers, err := c.store.ListServers(inv.GuildID)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			return ctx.Responder.Ephemeral(ctx.Interaction, "No game servers registered. Use /server add to register one.")
		}

		var b strings.Builder
		for _, srv := range servers {
			fmt.Fprintf(&b, "**%s** (`%s`) %s:%d\n", srv.Name, srv.ServerID, srv.Host, srv.Port)
		}
		return ctx.Responder.Embed(ctx.Interaction, &discordgo.MessageEmbed{
			Title:       "🗄️ Registered Servers",
			Description: b.String(),
			Color:       theme.Current().Info,
		})
	})
}

func (c *ServerCommand) remove(ctx *Context) error {
	cfg := guard.Config{
		Name:          "server.remove",
		GuildOnly:     true,
		Cooldown:      3 * time.Second,
		ServerIDParam: "server_id",
	}
	args := map[string]string{"server_id": ctx.StringOption("server_id")}
	return runGuarded(c.guardrail, cfg, ctx, args, func(inv *guard.Invocation) error {
		serverID := inv.Args["server_id"]
		removed, err := c.store.DeleteServer(inv.GuildID, serverID)
		if err != nil {
			return err
		}
		if !removed {
			return ctx.Responder.Error(ctx.Interaction, fmt.Sprintf("Server '%s' not found.", serverID))
		}
		return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Server '%s' removed.", serverID))
	})
}
