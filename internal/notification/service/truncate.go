package service

// truncateChars shortens s to at most limit runes, spending the last
// rune on an ellipsis when anything was cut.
func truncateChars(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
