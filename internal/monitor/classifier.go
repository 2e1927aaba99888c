package monitor

import "strings"

// EventDetected interprets a model reply as a binary detection signal: a
// case-insensitive containment match on "yes" or "event detected".
func EventDetected(reply string) bool {
	lower := strings.ToLower(reply)
	return strings.Contains(lower, "yes") || strings.Contains(lower, "event detected")
}
