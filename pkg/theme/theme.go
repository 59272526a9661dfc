package theme

import (
	"fmt"
	"sync"
)

// Color is the int value used by discordgo.MessageEmbed.Color
type Color = int

// Theme holds all color roles used across the bot's embeds. Keep roles
// generic enough to be reused; add a specific role here when an embed needs
// one so themes can override it explicitly.
type Theme struct {
	// Human-friendly name for the theme (unique within the registry).
	Name string

	// Core roles
	Primary Color // General primary color (Discord "blurple" by default)
	Info    Color
	Success Color
	Warning Color
	Error   Color
	Muted   Color // Neutral / disabled / default

	// Event notifications
	EventAlert  Color // mission, airdrop, trader, convoy, encounter
	EventDanger Color // crash, heli crash, server restart
	PlayerJoin  Color
	PlayerLeave Color
	VoiceCall   Color

	// Monitor status embeds
	MonitorRunning      Color
	MonitorReconnecting Color
	MonitorStopped      Color

	// Premium embeds
	PremiumInfo Color
}

// Clone returns a copy of the Theme.
func (t *Theme) Clone() *Theme {
	cp := *t
	return &cp
}

// ensureDefaults fills zero-valued fields with fallbacks derived from other
// roles, so themes can override only a subset of fields.
func (t *Theme) ensureDefaults() {
	if t.Info == 0 {
		t.Info = 0x3B82F6
	}
	if t.Success == 0 {
		t.Success = 0x57F287
	}
	if t.Warning == 0 {
		t.Warning = 0xF59E0B
	}
	if t.Error == 0 {
		t.Error = 0xED4245
	}
	if t.Muted == 0 {
		t.Muted = 0x99AAB5
	}

	if t.EventAlert == 0 {
		t.EventAlert = t.Warning
	}
	if t.EventDanger == 0 {
		t.EventDanger = t.Error
	}
	if t.PlayerJoin == 0 {
		t.PlayerJoin = 0x9ECE6A
	}
	if t.PlayerLeave == 0 {
		t.PlayerLeave = 0xF7768E
	}
	if t.VoiceCall == 0 {
		t.VoiceCall = 0x7AA2F7
	}

	if t.MonitorRunning == 0 {
		t.MonitorRunning = t.Success
	}
	if t.MonitorReconnecting == 0 {
		t.MonitorReconnecting = t.Warning
	}
	if t.MonitorStopped == 0 {
		t.MonitorStopped = t.Muted
	}

	if t.PremiumInfo == 0 {
		t.PremiumInfo = t.Primary
	}
}

// defaultTheme returns the built-in theme.
func defaultTheme() *Theme {
	th := &Theme{
		Name:    "default",
		Primary: 0x5865F2, // Discord blurple

		Info:    0x3B82F6,
		Success: 0x57F287,
		Warning: 0xF59E0B,
		Error:   0xED4245,
		Muted:   0x99AAB5,

		EventAlert:  0xF59E0B,
		EventDanger: 0xED4245,
		PlayerJoin:  0x9ECE6A,
		PlayerLeave: 0xF7768E,
		VoiceCall:   0x7AA2F7,

		MonitorRunning:      0x57F287,
		MonitorReconnecting: 0xF59E0B,
		MonitorStopped:      0x99AAB5,

		PremiumInfo: 0x5865F2,
	}
	th.ensureDefaults()
	return th
}

var (
	mu        sync.RWMutex
	registry  = map[string]*Theme{}
	currentTh = defaultTheme()
)

// Register adds a theme to the registry. It returns an error if the name is
// empty or already registered.
func Register(t *Theme) error {
	if t == nil {
		return fmt.Errorf("theme: cannot register nil theme")
	}
	if t.Name == "" {
		return fmt.Errorf("theme: name is required")
	}
	cp := t.Clone()
	cp.ensureDefaults()

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[cp.Name]; exists {
		return fmt.Errorf("theme: theme %q already registered", cp.Name)
	}
	registry[cp.Name] = cp
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(t *Theme) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// SetCurrent switches the active theme by name. An empty name restores the
// default theme.
func SetCurrent(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" {
		currentTh = defaultTheme()
		return nil
	}
	th, ok := registry[name]
	if !ok {
		return fmt.Errorf("theme: theme %q not found", name)
	}
	currentTh = th.Clone()
	currentTh.ensureDefaults()
	return nil
}

// Current returns a copy of the current theme. Modifying the returned value
// does not affect the global theme.
func Current() *Theme {
	mu.RLock()
	defer mu.RUnlock()
	return currentTh.Clone()
}
