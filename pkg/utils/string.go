package utils

// Truncate shortens s to at most maxLen runes, appending "..." when anything
// was cut. Used to keep model output and response bodies out of log lines.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// ShortID returns the first 8 characters of an identifier for log output, so
// full user identifiers never land in logs.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
