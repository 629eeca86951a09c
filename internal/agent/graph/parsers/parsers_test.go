package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Chative-insight/server/internal/agent/model"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in   string
		want model.Intent
		ok   bool
	}{
		{"structured_query", model.IntentStructuredQuery, true},
		{"  Knowledge_Search \n", model.IntentKnowledgeSearch, true},
		{`"translation".`, model.IntentTranslation, true},
		{"utility\nBecause the user greeted.", model.IntentUtility, true},
		{"**utility**", model.IntentUtility, true},
		{"Category: structured query", model.IntentStructuredQuery, true},
		{"", model.IntentUnset, false},
		{"   ", model.IntentUnset, false},
		{"weather", model.IntentUnset, false},
		{"I think this is a structured_query", model.IntentUnset, false},
		{string([]byte{0xff, 0xfe}), model.IntentUnset, false},
	}
	for _, tt := range tests {
		got, ok := ParseIntent(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT * FROM orders", "SELECT * FROM orders;"},
		{"fenced", "```sql\nSELECT *\nFROM orders;\n```", "SELECT * FROM orders;"},
		{"fence with prose", "Here you go:\n```\nSELECT 1;\n```\nEnjoy", "SELECT 1;"},
		{"comments", "-- top orders\nSELECT /* all */ * FROM orders -- done", "SELECT * FROM orders;"},
		{"prefix", "SQL: SELECT 1", "SELECT 1;"},
		{"stacked", "SELECT 1; DROP TABLE orders;", "SELECT 1;"},
		{"double semicolon", "SELECT 1;;", "SELECT 1;"},
		{"empty", "```sql\n```", ""},
		{"only comment", "-- nothing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSQL(tt.in))
		})
	}
}
