package theme

// deadzone.go
//
// Built-in high-contrast theme for survival servers that run darker embed
// palettes. Only event/notification roles are overridden; all other roles
// inherit from the default theme via ensureDefaults().
//
// To use:
//   TOWERBOT_THEME=deadzone

func init() {
	MustRegister(&Theme{
		Name: "deadzone",

		EventAlert:  0xC2703D, // Rust orange
		EventDanger: 0x8B1E1E, // Dried blood
		PlayerJoin:  0x5C8A4E,
		PlayerLeave: 0x6B2D2D,
		VoiceCall:   0x3D6A8A,
	})
}
