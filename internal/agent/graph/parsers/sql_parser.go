package parsers

import (
	"regexp"
	"strings"
)

var (
	fenceRe        = regexp.MustCompile("(?s)```(?:sql|sqlite)?\\s*(.*?)```")
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	spaceRe        = regexp.MustCompile(`\s+`)
	sqlPrefixRe    = regexp.MustCompile(`(?i)^\s*(sql|sqlite)\s*:\s*`)
)

// CleanSQL extracts a single executable statement from a model reply: it
// unwraps a markdown fence, strips comments, collapses whitespace, drops any
// trailing statements and ends the result with exactly one semicolon.
// An empty string means the reply held no statement.
func CleanSQL(content string) string {
	s := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.Trim(s, "`")
	s = blockCommentRe.ReplaceAllString(s, " ")
	s = lineCommentRe.ReplaceAllString(s, " ")
	s = sqlPrefixRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if idx := strings.Index(s, ";"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return s + ";"
}
