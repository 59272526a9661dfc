package monitor

import "strings"

// Event types recognized in game server logs, checked in order. Multi-word
// types sit before their single-word prefixes so "heli crash" does not
// classify as "crash".
var eventTypes = []string{
	"heli crash",
	"server restart",
	"mission",
	"airdrop",
	"crash",
	"trader",
	"convoy",
	"encounter",
}

// ClassifyEvent returns the event type a log line mentions, if any.
// Matching is case-insensitive substring search.
func ClassifyEvent(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, t := range eventTypes {
		if strings.Contains(lower, t) {
			return t, true
		}
	}
	return "", false
}

// ClassifyConnection returns "connected" or "disconnected" for player
// connection lines. "disconnected" is checked first since it contains
// "connected" as a substring.
func ClassifyConnection(message string) (string, bool) {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "disconnected") {
		return "disconnected", true
	}
	if strings.Contains(lower, "connected") {
		return "connected", true
	}
	return "", false
}

// IsVoiceCall reports whether a log line is a voice call notification.
func IsVoiceCall(message string) bool {
	return strings.Contains(strings.ToLower(message), "voice call")
}
