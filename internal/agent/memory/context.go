package memory

import (
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/model"
)

func renderContext(summary string, profile model.Profile, turns []model.Turn, cfg model.MemoryConfig) string {
	var parts []string

	if summary != "" {
		parts = append(parts, "Previous conversation summary: "+summary)
	}

	if profile.InteractionCount > cfg.ProfileThreshold {
		parts = append(parts, fmt.Sprintf("User has had %d interactions.", profile.InteractionCount))
		if top := profile.TopTopics(3); len(top) > 0 {
			parts = append(parts, "User is interested in: "+strings.Join(top, ", "))
		}
	}

	recent := turns
	if len(recent) > cfg.ContextTurns {
		recent = recent[len(recent)-cfg.ContextTurns:]
	}
	if len(recent) > 0 {
		parts = append(parts, "\nRecent conversation:")
		for _, t := range recent {
			parts = append(parts, fmt.Sprintf("%s: %s", roleLabel(t.Role), Truncate(t.Content, cfg.TurnCharBudget)))
		}
	}

	if len(parts) == 0 {
		return NoContext
	}
	return strings.Join(parts, "\n")
}

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleSystem:
		return "System"
	}
	s := string(r)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Truncate cuts s to at most n runes, appending "..." when it was cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
