package guard

import (
	"fmt"
	"sync"
	"time"
)

// CooldownTracker enforces per-(user, command) cooldown windows. Injected
// into each Guard so tests and multi-tenant hosts get isolated state.
type CooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewCooldownTracker creates an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{last: make(map[string]time.Time), now: time.Now}
}

// Check returns the remaining cooldown for (userID, command), zero when the
// invocation may pass. A passing check records the new timestamp immediately:
// the cooldown applies to pipeline pass-through, not handler success.
func (c *CooldownTracker) Check(userID, command string, window time.Duration) time.Duration {
	if window <= 0 || userID == "" {
		return 0
	}
	key := fmt.Sprintf("%s:%s", userID, command)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[key]; ok {
		if elapsed := now.Sub(last); elapsed < window {
			return window - elapsed
		}
	}
	c.last[key] = now
	return 0
}

// Reset clears all cooldown state. Operator-only.
func (c *CooldownTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}
