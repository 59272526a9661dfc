package commands

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/guard"
)

// MetricsCommand implements /metrics: the command health report and reset.
type MetricsCommand struct {
	metrics   *guard.MetricsRegistry
	guardrail *guard.Guard
}

// NewMetricsCommand wires the metrics command.
func NewMetricsCommand(metrics *guard.MetricsRegistry, guardrail *guard.Guard) *MetricsCommand {
	return &MetricsCommand{metrics: metrics, guardrail: guardrail}
}

func (c *MetricsCommand) Name() string { return "metrics" }

func (c *MetricsCommand) Definition() *discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	return &discordgo.ApplicationCommand{
		Name:                     "metrics",
		Description:              "Command usage and health metrics",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "report",
				Description: "Show the command metrics report",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reset",
				Description: "Reset all command metrics",
			},
		},
	}
}

func (c *MetricsCommand) Handle(ctx *Context) error {
	cfg := guard.Config{
		Name:      "metrics." + ctx.Subcommand,
		GuildOnly: true,
		Cooldown:  3 * time.Second,
	}

	switch ctx.Subcommand {
	case "report":
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			report := c.metrics.Report()
			// Discord caps message content at 2000 characters.
			if len(report) > 1900 {
				report = report[:1900] + "\n(truncated)"
			}
			return ctx.Responder.Ephemeral(ctx.Interaction, "```\n"+report+"\n```")
		})
	case "reset":
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			c.metrics.Reset()
			return ctx.Responder.Success(ctx.Interaction, "Command metrics reset.")
		})
	default:
		return ctx.Responder.Error(ctx.Interaction, "Unknown subcommand.")
	}
}
