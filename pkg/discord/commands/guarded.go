package commands

import (
	"github.com/toweroftemptation/towerbot/pkg/guard"
)

// runGuarded executes fn behind the guard pipeline, replying ephemerally on
// any rejection.
func runGuarded(g *guard.Guard, cfg guard.Config, ctx *Context, args map[string]string, fn guard.Handler) error {
	if args == nil {
		args = make(map[string]string)
	}
	inv := &guard.Invocation{
		Context: ctx.Context,
		GuildID: ctx.GuildID,
		UserID:  ctx.UserID,
		Args:    args,
		Reply: func(message string) error {
			return ctx.Responder.Ephemeral(ctx.Interaction, message)
		},
	}
	return g.Wrap(cfg, fn)(inv)
}
