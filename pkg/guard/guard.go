package guard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/toweroftemptation/towerbot/pkg/log"
	"github.com/toweroftemptation/towerbot/pkg/premium"
	"github.com/toweroftemptation/towerbot/pkg/storage"
)

// Invocation carries everything the guard needs from one command invocation.
// Args is a typed parameter map filled by the command layer; the guard never
// guesses parameters from positions.
type Invocation struct {
	Context context.Context
	GuildID string
	UserID  string
	Args    map[string]string

	// Reply delivers exactly one user-facing message on a rejected or
	// failed invocation. Errors from Reply are logged and swallowed.
	Reply func(message string) error
}

// Handler is a guarded command body.
type Handler func(inv *Invocation) error

// AccessEvaluator is the premium decision surface the guard consults.
type AccessEvaluator interface {
	Evaluate(guildID string, req premium.Requirement) (bool, string)
	EffectiveTier(guildID string) (premium.Tier, error)
}

// ServerSource resolves registered game servers for the server-ID check and
// counts them for the resource-limit check. *storage.Store satisfies it.
type ServerSource interface {
	GetServer(guildID, serverID string) (*storage.GameServer, error)
	CountServers(guildID string) (int, error)
}

// Config declares the checks applied before a handler runs. Zero values
// disable each check independently.
type Config struct {
	// Name keys the command's metrics and cooldowns.
	Name string

	// GuildOnly rejects invocations that carry no guild context.
	GuildOnly bool

	// Cooldown is the per-(user, command) window; zero disables it.
	Cooldown time.Duration

	// RequiredFeature gates the command behind a premium feature.
	RequiredFeature string

	// RequiredTier gates the command behind an explicit minimum tier when
	// RequireTier is set.
	RequiredTier premium.Tier
	RequireTier  bool

	// CheckServerLimit rejects when the guild is at or over its tier's
	// registered-server limit.
	CheckServerLimit bool

	// ServerIDParam names the Args entry holding a server ID that must
	// exist and belong to the invoking guild.
	ServerIDParam string

	// Timeout bounds each handler attempt; zero means no timeout.
	Timeout time.Duration

	// RetryCount is how many times a transient failure is retried after
	// the first attempt.
	RetryCount int

	// RetryBaseDelay seeds the progressive backoff (delay * attempt).
	// Defaults to 500ms.
	RetryBaseDelay time.Duration
}

// Guard wraps command handlers with the pre-flight pipeline. All state
// (metrics, cooldowns) is owned by the injected registries.
type Guard struct {
	evaluator AccessEvaluator
	servers   ServerSource
	metrics   *MetricsRegistry
	cooldowns *CooldownTracker

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Guard around the shared registries.
func New(evaluator AccessEvaluator, servers ServerSource, metrics *MetricsRegistry, cooldowns *CooldownTracker) *Guard {
	return &Guard{
		evaluator: evaluator,
		servers:   servers,
		metrics:   metrics,
		cooldowns: cooldowns,
		sleep:     sleepCtx,
	}
}

// Metrics exposes the injected registry for reporting commands.
func (g *Guard) Metrics() *MetricsRegistry { return g.metrics }

// Wrap returns a handler that runs the configured checks, then the inner
// handler under timeout/retry protection. Every rejected or failed
// invocation sends exactly one user-facing message and returns nil; the
// guard never propagates handler errors to the caller.
func (g *Guard) Wrap(cfg Config, handler Handler) Handler {
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}

	return func(inv *Invocation) error {
		start := time.Now()
		if inv.Context == nil {
			inv.Context = context.Background()
		}

		// 1. Guild-only.
		if cfg.GuildOnly && inv.GuildID == "" {
			g.reject(cfg.Name, inv, "This command can only be used in a server.")
			return nil
		}

		// 2. Cooldown. The timestamp updates on pass-through, so a failing
		// handler still consumes the window.
		if remaining := g.cooldowns.Check(inv.UserID, cfg.Name, cfg.Cooldown); remaining > 0 {
			g.reject(cfg.Name, inv, fmt.Sprintf("Please wait %d seconds before using this command again.", int(remaining.Seconds()+0.999)))
			return nil
		}

		// 3. Feature / tier access.
		if cfg.RequiredFeature != "" {
			if allowed, reason := g.evaluator.Evaluate(inv.GuildID, premium.FeatureRequirement(cfg.RequiredFeature)); !allowed {
				g.reject(cfg.Name, inv, reason)
				return nil
			}
		}
		if cfg.RequireTier {
			if allowed, reason := g.evaluator.Evaluate(inv.GuildID, premium.TierRequirement(cfg.RequiredTier)); !allowed {
				g.reject(cfg.Name, inv, reason)
				return nil
			}
		}

		// 4. Resource limit.
		if cfg.CheckServerLimit {
			if msg := g.checkServerLimit(inv.GuildID); msg != "" {
				g.reject(cfg.Name, inv, msg)
				return nil
			}
		}

		// 5. Server-ID validation with cross-guild isolation.
		if cfg.ServerIDParam != "" {
			if msg := g.validateServerID(inv, cfg.ServerIDParam); msg != "" {
				g.reject(cfg.Name, inv, msg)
				return nil
			}
		}

		// 6. Handler execution under timeout with transient-error retries.
		attempts := cfg.RetryCount + 1
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			err := g.runOnce(inv, cfg.Timeout, handler)
			if err == nil {
				g.metrics.RecordSuccess(cfg.Name, time.Since(start).Seconds())
				return nil
			}
			lastErr = err

			if !IsTransient(err) {
				g.metrics.RecordError(cfg.Name, err.Error())
				log.ErrorLogger().Error("command failed", "command", cfg.Name, "guild_id", inv.GuildID, "err", err)
				g.send(inv, UserMessage(err))
				return nil
			}

			if attempt < attempts {
				delay := cfg.RetryBaseDelay * time.Duration(attempt)
				log.ApplicationLogger().Warn("transient command failure, retrying",
					"command", cfg.Name,
					"attempt", attempt,
					"max_attempts", attempts,
					"backoff", delay.String(),
					"err", err,
				)
				if sleepErr := g.sleep(inv.Context, delay); sleepErr != nil {
					break
				}
			}
		}

		// 7. Transient budget exhausted.
		g.metrics.RecordError(cfg.Name, lastErr.Error())
		log.ErrorLogger().Error("command failed after retries", "command", cfg.Name, "attempts", attempts, "err", lastErr)
		if errors.Is(lastErr, context.DeadlineExceeded) {
			g.send(inv, fmt.Sprintf("Command timed out. Please try again. (after %d attempts)", attempts))
		} else {
			g.send(inv, "Network error occurred. Please try again later.")
		}
		return nil
	}
}

func (g *Guard) runOnce(inv *Invocation, timeout time.Duration, handler Handler) error {
	if timeout <= 0 {
		return handler(inv)
	}

	ctx, cancel := context.WithTimeout(inv.Context, timeout)
	defer cancel()

	attempt := *inv
	attempt.Context = ctx

	done := make(chan error, 1)
	go func() { done <- handler(&attempt) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) checkServerLimit(guildID string) string {
	tier, err := g.evaluator.EffectiveTier(guildID)
	if err != nil {
		tier = premium.TierFree
	}
	limit := premium.LimitForTier(tier, premium.LimitServers)

	count, err := g.servers.CountServers(guildID)
	if err != nil {
		log.ErrorLogger().Error("server count failed", "guild_id", guildID, "err", err)
		return "Database connection error. Please try again later."
	}
	if count >= limit {
		return fmt.Sprintf("This server has reached its limit of %d registered game servers for the %s tier.", limit, tier)
	}
	return ""
}

func (g *Guard) validateServerID(inv *Invocation, param string) string {
	raw, ok := inv.Args[param]
	if !ok || raw == "" {
		return fmt.Sprintf("Missing required parameter: %s.", param)
	}

	serverID := NormalizeServerID(raw)
	if !ValidServerID(serverID) {
		return fmt.Sprintf("Invalid server ID format: %s.", raw)
	}

	srv, err := g.servers.GetServer(inv.GuildID, serverID)
	if err != nil {
		log.ErrorLogger().Error("server lookup failed", "guild_id", inv.GuildID, "server_id", serverID, "err", err)
		return "Database connection error. Please try again later."
	}
	if srv == nil {
		// Covers both "never registered" and "registered under another
		// guild": cross-guild lookups must never resolve.
		return fmt.Sprintf("Server '%s' not found in this Discord server. Use /monitor status to see registered servers.", serverID)
	}

	inv.Args[param] = serverID
	return ""
}

func (g *Guard) reject(name string, inv *Invocation, message string) {
	g.metrics.RecordError(name, message)
	g.send(inv, message)
}

func (g *Guard) send(inv *Invocation, message string) {
	if inv.Reply == nil {
		return
	}
	if err := inv.Reply(message); err != nil {
		log.ErrorLogger().Error("failed to deliver command reply", "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var serverIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// NormalizeServerID canonicalizes user-entered server IDs: trims whitespace,
// strips a leading '#', and lowercases.
func NormalizeServerID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "#")
	return strings.ToLower(s)
}

// ValidServerID reports whether a normalized server ID is well-formed.
func ValidServerID(id string) bool {
	return serverIDPattern.MatchString(id)
}
