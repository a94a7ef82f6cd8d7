// Package classify maps transcript text onto a small, stable priority set.
package classify

import "strings"

// Keyword sets checked in order: urgent first, then high. A transcript that
// matches neither set is medium. Urgent wins even when high keywords are
// also present.
var (
	urgentKeywords = []string{
		"fire", "emergency", "dangerous", "urgent", "gas leak",
		"flood", "explosion", "injured", "collapse", "downed wire",
	}
	highKeywords = []string{
		"pothole", "broken", "traffic light", "streetlight", "street light",
		"water leak", "blocked", "fallen tree", "sewage", "stop sign",
	}
)

// Priority classifies transcript text as urgent, high, or medium via
// case-insensitive substring matching.
func Priority(text string) string {
	t := strings.ToLower(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(t, kw) {
			return "urgent"
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(t, kw) {
			return "high"
		}
	}
	return "medium"
}
