package dispatch

import "strings"

// DefaultMaxMessageLen is the per-message rune limit of the live room.
const DefaultMaxMessageLen = 20

// SplitMessage cuts text into chunks of at most limit runes, in order.
// Blank text yields no chunks. limit <= 0 disables splitting.
func SplitMessage(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	rs := []rune(text)
	if limit <= 0 || len(rs) <= limit {
		return []string{text}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); start += limit {
		end := min(start+limit, len(rs))
		out = append(out, string(rs[start:end]))
	}
	return out
}
