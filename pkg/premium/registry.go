package premium

// Tier is an ordered subscription level. Higher tiers include every feature
// available to lower tiers.
type Tier int

const (
	TierFree Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

var tierNames = map[Tier]string{
	TierFree:     "Standard (Free)",
	TierBronze:   "Bronze",
	TierSilver:   "Silver",
	TierGold:     "Gold",
	TierPlatinum: "Platinum",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "Unknown"
}

// TierFromInt clamps an arbitrary stored integer into a known tier.
func TierFromInt(v int) Tier {
	if v < int(TierFree) {
		return TierFree
	}
	if v > int(TierPlatinum) {
		return TierPlatinum
	}
	return Tier(v)
}

// featureTiers maps each feature to the minimum tier that unlocks it.
var featureTiers = map[string]Tier{
	"advanced_analytics":  TierBronze,
	"custom_charts":       TierSilver,
	"data_export":         TierBronze,
	"advanced_moderation": TierBronze,
	"auto_moderation":     TierSilver,
	"custom_log_filters":  TierSilver,
	"unlimited_logs":      TierGold,
	"custom_commands":     TierBronze,
	"custom_embeds":       TierSilver,
	"scheduled_commands":  TierGold,
	"reaction_roles":      TierBronze,
	"advanced_roles":      TierSilver,
	"role_management":     TierBronze,
	"auto_roles":          TierBronze,
	"welcome_messages":    TierFree,
	"custom_welcome":      TierBronze,
	"leave_messages":      TierBronze,
	"member_verification": TierSilver,
	"boost_tracking":      TierBronze,
	"voice_tracking":      TierSilver,
	"csv_processor":       TierSilver,
	"advanced_csv":        TierGold,
	"sftp_access":         TierGold,
	"database_export":     TierPlatinum,
	"premium_support":     TierBronze,
	"priority_support":    TierGold,
	"custom_bot_avatar":   TierPlatinum,
}

// FeatureMinimumTier returns the minimum tier required for a feature and
// whether the feature is registered at all.
func FeatureMinimumTier(name string) (Tier, bool) {
	t, ok := featureTiers[name]
	return t, ok
}

// Features returns the names of all registered features.
func Features() []string {
	names := make([]string, 0, len(featureTiers))
	for name := range featureTiers {
		names = append(names, name)
	}
	return names
}

// FeaturesForTier returns every feature available at the given tier,
// honoring tier inheritance.
func FeaturesForTier(t Tier) []string {
	var names []string
	for name, min := range featureTiers {
		if min <= t {
			names = append(names, name)
		}
	}
	return names
}

// Resource limit names used by guarded commands.
const (
	LimitServers         = "max_servers"
	LimitCustomCommands  = "max_custom_commands"
	LimitSFTPConnections = "max_sftp_connections"
)

// tierLimits maps each tier to its numeric resource limits.
var tierLimits = map[Tier]map[string]int{
	TierFree:     {LimitServers: 1, LimitCustomCommands: 10, LimitSFTPConnections: 1},
	TierBronze:   {LimitServers: 2, LimitCustomCommands: 15, LimitSFTPConnections: 2},
	TierSilver:   {LimitServers: 3, LimitCustomCommands: 25, LimitSFTPConnections: 3},
	TierGold:     {LimitServers: 5, LimitCustomCommands: 50, LimitSFTPConnections: 5},
	TierPlatinum: {LimitServers: 10, LimitCustomCommands: 100, LimitSFTPConnections: 10},
}

// LimitForTier returns the numeric limit for a tier, falling back to the free
// tier's value when the limit name is unknown for that tier.
func LimitForTier(t Tier, name string) int {
	if limits, ok := tierLimits[t]; ok {
		if v, ok := limits[name]; ok {
			return v
		}
	}
	if v, ok := tierLimits[TierFree][name]; ok {
		return v
	}
	return 0
}
