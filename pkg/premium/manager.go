package premium

import (
	"fmt"
	"time"

	"github.com/toweroftemptation/towerbot/pkg/log"
	"github.com/toweroftemptation/towerbot/pkg/storage"
)

// SubscriptionStore is the write side of the subscription collection.
type SubscriptionStore interface {
	SubscriptionSource
	UpsertSubscription(sub storage.Subscription) error
}

// Manager performs grant, extend, and revoke operations on guild
// subscriptions. Subscriptions are never hard-deleted: revoking zeroes the
// tier and the row remains for history.
type Manager struct {
	store SubscriptionStore
	eval  *Evaluator
	now   func() time.Time
}

// NewManager builds a Manager. The evaluator may be nil when cache
// invalidation is not needed (tests).
func NewManager(store SubscriptionStore, eval *Evaluator) *Manager {
	return &Manager{store: store, eval: eval, now: time.Now}
}

// Grant sets a guild's tier for the given duration. A non-positive duration
// grants without expiry. Existing feature overrides are preserved.
func (m *Manager) Grant(guildID string, tier Tier, d time.Duration) error {
	if guildID == "" {
		return fmt.Errorf("guild id is empty")
	}
	existing, err := m.store.GetSubscription(guildID)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}

	sub := storage.Subscription{GuildID: guildID, Tier: int(tier)}
	if existing != nil {
		sub.FeatureOverrides = existing.FeatureOverrides
	}
	if d > 0 {
		sub.HasExpiry = true
		sub.ExpiresAt = m.now().Add(d).UTC()
	}
	if err := m.store.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}
	m.invalidate(guildID)

	log.DatabaseLogger().Info("premium granted", "guild_id", guildID, "tier", tier.String(), "duration", d.String())
	return nil
}

// Extend pushes a guild's expiry forward by d, anchored at the later of now
// and the current expiry. Extending a guild without a subscription is an error.
func (m *Manager) Extend(guildID string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("extension duration must be positive")
	}
	existing, err := m.store.GetSubscription(guildID)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	if existing == nil || existing.Tier == int(TierFree) {
		return fmt.Errorf("guild %s has no active subscription to extend", guildID)
	}

	anchor := m.now().UTC()
	if existing.HasExpiry && existing.ExpiresAt.After(anchor) {
		anchor = existing.ExpiresAt
	}
	existing.HasExpiry = true
	existing.ExpiresAt = anchor.Add(d)
	if err := m.store.UpsertSubscription(*existing); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}
	m.invalidate(guildID)

	log.DatabaseLogger().Info("premium extended", "guild_id", guildID, "expires_at", existing.ExpiresAt)
	return nil
}

// Revoke drops a guild to the free tier while keeping the row and its
// overrides for history.
func (m *Manager) Revoke(guildID string) error {
	existing, err := m.store.GetSubscription(guildID)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	if existing == nil {
		return nil
	}
	existing.Tier = int(TierFree)
	existing.HasExpiry = false
	existing.ExpiresAt = time.Time{}
	if err := m.store.UpsertSubscription(*existing); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}
	m.invalidate(guildID)

	log.DatabaseLogger().Info("premium revoked", "guild_id", guildID)
	return nil
}

// EnableFeature adds a feature override for a guild. Overrides are additive
// grants and may unlock a feature above the guild's tier.
func (m *Manager) EnableFeature(guildID, feature string) error {
	if _, known := FeatureMinimumTier(feature); !known {
		return fmt.Errorf("unknown feature %q", feature)
	}
	existing, err := m.store.GetSubscription(guildID)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	sub := storage.Subscription{GuildID: guildID}
	if existing != nil {
		sub = *existing
	}
	for _, f := range sub.FeatureOverrides {
		if f == feature {
			return nil
		}
	}
	sub.FeatureOverrides = append(sub.FeatureOverrides, feature)
	if err := m.store.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}
	m.invalidate(guildID)
	return nil
}

// DisableFeature removes a feature override. It cannot revoke access granted
// by the guild's tier itself.
func (m *Manager) DisableFeature(guildID, feature string) error {
	existing, err := m.store.GetSubscription(guildID)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	if existing == nil {
		return nil
	}
	kept := existing.FeatureOverrides[:0]
	for _, f := range existing.FeatureOverrides {
		if f != feature {
			kept = append(kept, f)
		}
	}
	existing.FeatureOverrides = kept
	if err := m.store.UpsertSubscription(*existing); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}
	m.invalidate(guildID)
	return nil
}

func (m *Manager) invalidate(guildID string) {
	if m.eval != nil {
		m.eval.Invalidate(guildID)
	}
}
