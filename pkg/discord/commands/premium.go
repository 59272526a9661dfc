package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toweroftemptation/towerbot/pkg/guard"
	"github.com/toweroftemptation/towerbot/pkg/premium"
	"github.com/toweroftemptation/towerbot/pkg/theme"
)

// PremiumCommand implements /premium: subscription status plus the
// grant/extend/revoke/feature administration subcommands.
type PremiumCommand struct {
	manager   *premium.Manager
	evaluator *premium.Evaluator
	source    premium.SubscriptionSource
	guardrail *guard.Guard
}

// NewPremiumCommand wires the premium command.
func NewPremiumCommand(manager *premium.Manager, evaluator *premium.Evaluator, source premium.SubscriptionSource, guardrail *guard.Guard) *PremiumCommand {
	return &PremiumCommand{
		manager:   manager,
		evaluator: evaluator,
		source:    source,
		guardrail: guardrail,
	}
}

func (c *PremiumCommand) Name() string { return "premium" }

func (c *PremiumCommand) Definition() *discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	minTier := float64(premium.TierFree)

	tierChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, 5)
	for t := premium.TierFree; t <= premium.TierPlatinum; t++ {
		tierChoices = append(tierChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  t.String(),
			Value: int(t),
		})
	}

	return &discordgo.ApplicationCommand{
		Name:                     "premium",
		Description:              "Manage this server's premium subscription",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the current subscription tier and features",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "grant",
				Description: "Grant a subscription tier to this server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "tier",
						Description: "Subscription tier",
						Required:    true,
						MinValue:    &minTier,
						Choices:     tierChoices,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "days",
						Description: "Duration in days (omit for no expiry)",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "extend",
				Description: "Extend the active subscription",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "days",
						Description: "Days to add",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "revoke",
				Description: "Revoke this server's subscription",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "feature",
				Description: "Enable or disable a feature override",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "Feature name",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "enabled",
						Description: "Whether the override is active",
						Required:    true,
					},
				},
			},
		},
	}
}

func (c *PremiumCommand) Handle(ctx *Context) error {
	cfg := guard.Config{
		Name:      "premium." + ctx.Subcommand,
		GuildOnly: true,
		Cooldown:  3 * time.Second,
	}

	switch ctx.Subcommand {
	case "status":
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			return c.status(ctx)
		})
	case "grant":
		tier := premium.TierFromInt(int(ctx.IntOption("tier")))
		days := ctx.IntOption("days")
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			if err := c.manager.Grant(inv.GuildID, tier, time.Duration(days)*24*time.Hour); err != nil {
				return err
			}
			if days > 0 {
				return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Granted the %s tier for %d days.", tier, days))
			}
			return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Granted the %s tier with no expiry.", tier))
		})
	case "extend":
		days := ctx.IntOption("days")
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			if err := c.manager.Extend(inv.GuildID, time.Duration(days)*24*time.Hour); err != nil {
				return err
			}
			return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Extended the subscription by %d days.", days))
		})
	case "revoke":
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			if err := c.manager.Revoke(inv.GuildID); err != nil {
				return err
			}
			return ctx.Responder.Success(ctx.Interaction, "Subscription revoked. The server is back on the free tier.")
		})
	case "feature":
		name := ctx.StringOption("name")
		enabled := ctx.BoolOption("enabled")
		return runGuarded(c.guardrail, cfg, ctx, nil, func(inv *guard.Invocation) error {
			var err error
			if enabled {
				err = c.manager.EnableFeature(inv.GuildID, name)
			} else {
				err = c.manager.DisableFeature(inv.GuildID, name)
			}
			if err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			return ctx.Responder.Success(ctx.Interaction, fmt.Sprintf("Feature override '%s' %s.", name, state))
		})
	default:
		return ctx.Responder.Error(ctx.Interaction, "Unknown subcommand.")
	}
}

func (c *PremiumCommand) status(ctx *Context) error {
	tier, err := c.evaluator.EffectiveTier(ctx.GuildID)
	if err != nil {
		return fmt.Errorf("look up subscription: %w", err)
	}

	embed := &discordgo.MessageEmbed{
		Title: "💎 Premium Status",
		Color: theme.Current().PremiumInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Tier", Value: tier.String(), Inline: true},
		},
	}

	sub, err := c.source.GetSubscription(ctx.GuildID)
	if err != nil {
		return fmt.Errorf("look up subscription: %w", err)
	}
	if sub != nil && sub.HasExpiry {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Expires",
			Value:  sub.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"),
			Inline: true,
		})
	}
	if sub != nil && len(sub.FeatureOverrides) > 0 {
		overrides := append([]string(nil), sub.FeatureOverrides...)
		sort.Strings(overrides)
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Feature Overrides",
			Value: strings.Join(overrides, ", "),
		})
	}

	features := premium.FeaturesForTier(tier)
	sort.Strings(features)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("Features (%d)", len(features)),
		Value: strings.Join(features, ", "),
	})

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Limits",
		Value: fmt.Sprintf("Servers: %d | Custom commands: %d | SFTP connections: %d",
			premium.LimitForTier(tier, premium.LimitServers),
			premium.LimitForTier(tier, premium.LimitCustomCommands),
			premium.LimitForTier(tier, premium.LimitSFTPConnections)),
	})

	return ctx.Responder.Embed(ctx.Interaction, embed)
}
