package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/guard"
	"github.com/toweroftemptation/towerbot/pkg/monitor"
	"github.com/toweroftemptation/towerbot/pkg/storage"
	"github.com/toweroftemptation/towerbot/pkg/theme"
)

// MonitorStatusStore is the storage surface for /monitor status.
type MonitorStatusStore interface {
	ListServers(guildID string) ([]storage.GameServer, error)
	GetMonitorStatus(guildID, serverID, monitorType string) (*storage.MonitorStatus, error)
}

// MonitorCommand implements /monitor: starting, stopping, and inspecting the
// per-server event monitors.
type MonitorCommand struct {
	monitors  *monitor.Manager
	store     MonitorStatusStore
	guardrail *guard.Guard
}

// NewMonitorCommand wires the monitor control command.
func NewMonitorCommand(monitors *monitor.Manager, store MonitorStatusStore, guardrail *guard.Guard) *MonitorCommand {
	return &MonitorCommand{monitors: monitors, store: store, guardrail: guardrail}
}

func (c *MonitorCommand) Name() string { return "monitor" }

func (c *MonitorCommand) Definition() *discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)

	serverOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "server_id",
		Description: "Registered server identifier",
		Required:    true,
	}

	return &discordgo.ApplicationCommand{
		Name:                     "monitor",
		Description:              "Control the game server event monitors",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start the event monitor for a server",
				Options:     []*discordgo.ApplicationCommandOption{serverOpt},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop the event monitor for a server",
				Options:     []*discordgo.ApplicationCommandOption{serverOpt},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show monitor status for all registered servers",
			},
		},
	}
}

func (c *MonitorCommand) Handle(ctx *Context) error {
	switch ctx.Subcommand {
	case "start":
		return c.start(ctx)
	case "stop":
		return c.stop(ctx)
	case "status":
		return c.status(ctx)
	default:
		return ctx.Responder.Error(ctx.Interaction, "Unknown subcommand.")
	}
}

func (c *MonitorCommand) start(ctx *Context) error {
	cfg := guard.Config{
		Name:            "monitor.start",
		GuildOnly:       true,
		Cooldown:        5 * time.Second,
		RequiredFeature: "sftp_access",
		ServerIDParam:   "server_id",
		Timeout:         30 * time.Second,
		RetryCount:      2,
	}
	args := map[string]string{"server_id": ctx.StringOption("server_id")}
	return runGuarded(c.guardrail, cfg, ctx, args, func(inv *guard.Invocation) error {
		serverID := inv.Args["server_id"]
		if err := c.monitors.Start(inv.Context, inv.GuildID, serverID); err != nil {
			return err
		}
		return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Event monitor started for '%s'.", serverID))
	})
}

func (c *MonitorCommand) stop(ctx *Context) error {
	cfg := guard.Config{
		Name:          "monitor.stop",
		GuildOnly:     true,
		Cooldown:      5 * time.Second,
		ServerIDParam: "server_id",
	}
	args := map[string]string{"server_id": ctx.StringOption("server_id")}
	return runGuarded(c.guardrail, cfg, ctx, args, func(inv *guard.Invocation) error {
		serverID := inv.Args["server_id"]
		if err := c.monitors.Stop(inv.GuildID, serverID); err != nil {
			return err
		}
		return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Event monitor stopped for '%s'.", serverID))
	})
}

func (c *MonitorCommand) status(ctx *Context) error {
	cfg := guard.Config{Name: "monitor.status", GuildOnly: true, Cooldown: 3 * time.Second}
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
			line := c.statusLine(inv.GuildID, srv.ServerID)
			fmt.Fprintf(&b, "**%s** (`%s`): %s\n", srv.Name, srv.ServerID, line)
		}
		return ctx.Responder.Embed(ctx.Interaction, &discordgo.MessageEmbed{
			Title:       "📡 Monitor Status",
			Description: b.String(),
			Color:       theme.Current().Info,
		})
	})
}

// statusLine prefers the live in-process state and falls back to the
// persisted status for monitors owned by a previous process.
func (c *MonitorCommand) statusLine(guildID, serverID string) string {
	if state, lastErr, ok := c.monitors.Status(guildID, serverID); ok {
		if lastErr != "" {
			return fmt.Sprintf("%s (%s)", state, lastErr)
		}
		return state.String()
	}

	st, err := c.store.GetMonitorStatus(guildID, serverID, monitor.MonitorTypeEvents)
	if err != nil || st == nil {
		return "not started"
	}
	if st.Running {
		return fmt.Sprintf("recorded running, last update %s", st.LastUpdated.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if st.Error != "" {
		return fmt.Sprintf("stopped (%s)", st.Error)
	}
	return "stopped"
}
