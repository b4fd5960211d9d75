package shared

import "strings"

// ParseFlag converts the loosely-typed truthy encodings that arrive from HTML
// forms and legacy imports (1, "1", "Yes", "true", "on", checkbox presence)
// into a canonical bool. Every storage-bound conversion must go through here.
func ParseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on", "allow", "allowed":
		return true
	default:
		return false
	}
}

// FlagKnown reports whether raw is a recognised boolean encoding at all,
// so callers can distinguish "explicit false" from garbage input.
func FlagKnown(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on", "allow", "allowed",
		"0", "false", "no", "n", "off", "deny", "denied":
		return true
	default:
		return false
	}
}
