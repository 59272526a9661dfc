package premium

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/toweroftemptation/towerbot/pkg/log"
	"github.com/toweroftemptation/towerbot/pkg/storage"
)

// SubscriptionSource reads the persisted premium record for a guild.
// *storage.Store satisfies it; tests inject fakes.
type SubscriptionSource interface {
	GetSubscription(guildID string) (*storage.Subscription, error)
}

// Requirement is either a named feature or an explicit minimum tier.
type Requirement struct {
	feature string
	minTier Tier
}

// FeatureRequirement requires access to the named feature.
func FeatureRequirement(name string) Requirement {
	return Requirement{feature: name}
}

// TierRequirement requires at least the given tier.
func TierRequirement(t Tier) Requirement {
	return Requirement{minTier: t}
}

// cachedSub wraps a lookup result so that "no subscription" is cacheable too.
type cachedSub struct {
	sub *storage.Subscription
}

// Evaluator decides whether a guild may use a feature or tier. The database
// is ground truth; reads go through a short-lived cache so a burst of guarded
// commands does not hammer the subscriptions table.
type Evaluator struct {
	source   SubscriptionSource
	failOpen bool
	cache    *expirable.LRU[string, cachedSub]
	now      func() time.Time
}

// NewEvaluator builds an Evaluator. failOpen controls the decision taken when
// the subscription lookup itself errors: true grants access, false denies it.
func NewEvaluator(source SubscriptionSource, failOpen bool, cacheTTL time.Duration) *Evaluator {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Evaluator{
		source:   source,
		failOpen: failOpen,
		cache:    expirable.NewLRU[string, cachedSub](1024, nil, cacheTTL),
		now:      time.Now,
	}
}

// Invalidate drops the cached subscription for a guild. Called after grant,
// extend, and revoke so the next evaluation sees the database state.
func (e *Evaluator) Invalidate(guildID string) {
	e.cache.Remove(guildID)
}

// Evaluate never returns an error: the result is an allow/deny decision plus
// a user-facing reason on deny.
func (e *Evaluator) Evaluate(guildID string, req Requirement) (bool, string) {
	sub, err := e.lookup(guildID)
	if err != nil {
		log.ErrorLogger().Error("subscription lookup failed", "guild_id", guildID, "err", err)
		if e.failOpen {
			return true, ""
		}
		return false, "Unable to verify premium status right now. Please try again later."
	}

	effective := effectiveTier(sub, e.now())

	required := req.minTier
	if req.feature != "" {
		min, known := FeatureMinimumTier(req.feature)
		if !known {
			log.ApplicationLogger().Warn("unknown premium feature, defaulting to Bronze", "feature", req.feature)
			min = TierBronze
		}
		required = min

		// Overrides are additive grants: they can enable a feature beyond
		// the guild's tier, but never revoke one the tier already includes.
		if effective < required && sub != nil {
			for _, f := range sub.FeatureOverrides {
				if f == req.feature {
					return true, ""
				}
			}
		}
	}

	if effective >= required {
		return true, ""
	}

	if req.feature != "" {
		return false, fmt.Sprintf(
			"The %s feature requires the %s tier or higher. This server is on %s.",
			req.feature, required, effective,
		)
	}
	return false, fmt.Sprintf(
		"This command requires the %s tier or higher. This server is on %s.",
		required, effective,
	)
}

// EffectiveTier resolves the guild's current tier, applying expiry. Errors
// surface so callers that are not on the allow/deny path can handle them.
func (e *Evaluator) EffectiveTier(guildID string) (Tier, error) {
	sub, err := e.lookup(guildID)
	if err != nil {
		return TierFree, err
	}
	return effectiveTier(sub, e.now()), nil
}

func (e *Evaluator) lookup(guildID string) (*storage.Subscription, error) {
	if entry, ok := e.cache.Get(guildID); ok {
		return entry.sub, nil
	}
	sub, err := e.source.GetSubscription(guildID)
	if err != nil {
		return nil, err
	}
	e.cache.Add(guildID, cachedSub{sub: sub})
	return sub, nil
}

// effectiveTier treats a missing or expired subscription as the free tier.
func effectiveTier(sub *storage.Subscription, now time.Time) Tier {
	if sub == nil {
		return TierFree
	}
	if sub.HasExpiry && sub.ExpiresAt.Before(now) {
		return TierFree
	}
	return TierFromInt(sub.Tier)
}
