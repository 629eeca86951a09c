package parsers

import (
	"strings"
	"unicode/utf8"

	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// classifier replies longer than this are never a bare category name
const maxIntentLen = 256

// ParseIntent normalises a classifier reply and matches it against the closed
// intent set. It accepts a bare name, a quoted name, a trailing period, or a
// name followed by an explanation on later lines. ok is false when nothing in
// the reply names a valid intent.
func ParseIntent(content string) (model.Intent, bool) {
	if !utf8.ValidString(content) {
		logx.Warn().Str("component", "intent_parser").Msg("classifier reply is not valid utf8")
		return model.IntentUnset, false
	}
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxIntentLen {
		return model.IntentUnset, false
	}

	first := content
	if idx := strings.IndexAny(first, "\r\n"); idx >= 0 {
		first = first[:idx]
	}
	first = strings.Trim(strings.TrimSpace(first), "\"'`*.:;,[](){} ")
	first = strings.TrimPrefix(strings.ToLower(first), "category:")
	first = strings.ReplaceAll(strings.TrimSpace(first), " ", "_")

	if in, ok := model.ParseIntent(first); ok {
		return in, true
	}
	return model.IntentUnset, false
}
